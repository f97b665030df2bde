package email

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dhernos/vestri-auth/internal/config"
)

func TestBuildMIMEPrefersHTML(t *testing.T) {
	raw := string(buildMIME("noreply@example.com", Message{To: "a@x.com", Subject: "Hi", Text: "plain", HTML: "<p>rich</p>"}))
	assert.Contains(t, raw, "From: noreply@example.com\r\n")
	assert.Contains(t, raw, "To: a@x.com\r\n")
	assert.Contains(t, raw, "Subject: Hi\r\n")
	assert.Contains(t, raw, "Content-Type: text/html")
	assert.True(t, strings.HasSuffix(raw, "<p>rich</p>"))
}

func TestBuildMIMEFallsBackToText(t *testing.T) {
	raw := string(buildMIME("noreply@example.com", Message{To: "a@x.com", Subject: "Hi", Text: "plain"}))
	assert.Contains(t, raw, "Content-Type: text/plain")
	assert.True(t, strings.HasSuffix(raw, "plain"))
}

func TestSenderRequiresConfiguration(t *testing.T) {
	err := NewSender(config.EmailConfig{}).Send(context.Background(), Message{To: "a@x.com"})
	assert.EqualError(t, err, "email is not configured")
}

// fakeSMTP accepts one session and reports the DATA payload after QUIT.
func fakeSMTP(t *testing.T) (string, int, <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	out := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		tp := textproto.NewConn(conn)
		_ = tp.PrintfLine("220 localhost ESMTP")
		var data string
		for {
			line, err := tp.ReadLine()
			if err != nil {
				return
			}
			switch strings.ToUpper(strings.SplitN(line, " ", 2)[0]) {
			case "EHLO", "HELO":
				_ = tp.PrintfLine("250 localhost")
			case "MAIL", "RCPT":
				_ = tp.PrintfLine("250 OK")
			case "DATA":
				_ = tp.PrintfLine("354 go ahead")
				b, err := tp.ReadDotBytes()
				if err != nil {
					return
				}
				data = string(b)
				_ = tp.PrintfLine("250 queued")
			case "QUIT":
				_ = tp.PrintfLine("221 bye")
				out <- data
				return
			default:
				_ = tp.PrintfLine("502 unsupported")
			}
		}
	}()

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return host, port, out
}

func TestSenderDeliversOverSMTP(t *testing.T) {
	host, port, received := fakeSMTP(t)
	s := NewSender(config.EmailConfig{Host: host, Port: port, From: "noreply@example.com"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Send(ctx, Message{To: "a@x.com", Subject: "Hi", Text: "code 123456"}))

	select {
	case data := <-received:
		assert.Contains(t, data, "To: a@x.com")
		assert.Contains(t, data, "Subject: Hi")
		assert.Contains(t, data, "code 123456")
	case <-time.After(5 * time.Second):
		t.Fatal("smtp session did not finish")
	}
}

func TestSenderReportsDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	require.NoError(t, ln.Close())

	err = NewSender(config.EmailConfig{Host: host, Port: port, From: "noreply@example.com"}).
		Send(context.Background(), Message{To: "a@x.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp dial")
}

func TestLogSenderLogsMessage(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	s := &LogSender{Logger: zap.New(core)}

	require.NoError(t, s.Send(context.Background(), Message{To: "a@x.com", Subject: "Verify", Template: "verification", Text: "code 123456"}))
	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "a@x.com", fields["to"])
	assert.Equal(t, "verification", fields["template"])
}

type fakeChannel struct {
	exchange string
	key      string
	msg      amqp091.Publishing
	err      error
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp091.Publishing) error {
	f.exchange, f.key, f.msg = exchange, key, msg
	return f.err
}

func TestQueuePublisherPublishesPersistentJSON(t *testing.T) {
	ch := &fakeChannel{}
	p := &QueuePublisher{channel: ch, exchange: "notifications"}

	require.NoError(t, p.Send(context.Background(), Message{To: "a@x.com", Subject: "Welcome", Template: "welcome"}))
	assert.Equal(t, "notifications", ch.exchange)
	assert.Equal(t, routingKey, ch.key)
	assert.Equal(t, "application/json", ch.msg.ContentType)
	assert.Equal(t, amqp091.Persistent, ch.msg.DeliveryMode)
	assert.NotEmpty(t, ch.msg.MessageId)

	var got Message
	require.NoError(t, json.Unmarshal(ch.msg.Body, &got))
	assert.Equal(t, "welcome", got.Template)
}

func TestQueuePublisherPropagatesErrors(t *testing.T) {
	p := &QueuePublisher{channel: &fakeChannel{err: errors.New("channel closed")}, exchange: "x"}
	assert.Error(t, p.Send(context.Background(), Message{To: "a@x.com"}))
}

type fakeAck struct {
	acks, nacks, rejects int
	requeue              bool
}

func (f *fakeAck) Ack(uint64, bool) error { f.acks++; return nil }
func (f *fakeAck) Nack(_ uint64, _ bool, requeue bool) error {
	f.nacks++
	f.requeue = requeue
	return nil
}
func (f *fakeAck) Reject(_ uint64, requeue bool) error {
	f.rejects++
	f.requeue = requeue
	return nil
}

type recordingNotifier struct {
	sent []Message
	err  error
}

func (r *recordingNotifier) Send(_ context.Context, m Message) error {
	r.sent = append(r.sent, m)
	return r.err
}

func newRetryCounter(t *testing.T) (*miniredis.Miniredis, *RetryCounter) {
	t.Helper()
	m := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return m, NewRetryCounter(rdb, time.Hour)
}

func TestQueueConsumerProcess(t *testing.T) {
	body, _ := json.Marshal(Message{To: "a@x.com", Subject: "Verify"})

	t.Run("delivers and acks", func(t *testing.T) {
		target := &recordingNotifier{}
		c := &QueueConsumer{target: target, logger: zap.NewNop()}
		ack := &fakeAck{}

		c.process(context.Background(), amqp091.Delivery{Acknowledger: ack, Body: body})
		assert.Equal(t, 1, ack.acks)
		require.Len(t, target.sent, 1)
		assert.Equal(t, "a@x.com", target.sent[0].To)
	})

	t.Run("requeues on send failure", func(t *testing.T) {
		c := &QueueConsumer{target: &recordingNotifier{err: errors.New("smtp down")}, logger: zap.NewNop()}
		ack := &fakeAck{}

		c.process(context.Background(), amqp091.Delivery{Acknowledger: ack, Body: body})
		assert.Equal(t, 1, ack.nacks)
		assert.True(t, ack.requeue)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		m, retries := newRetryCounter(t)
		target := &recordingNotifier{err: errors.New("connection reset")}
		c := &QueueConsumer{target: target, retries: retries, maxAttempts: 5, logger: zap.NewNop()}
		ack := &fakeAck{}

		d := amqp091.Delivery{Acknowledger: ack, Body: body, MessageId: "msg-1"}
		for i := 0; i < 50 && ack.rejects == 0; i++ {
			c.process(context.Background(), d)
			d.Redelivered = true
		}

		assert.Equal(t, 4, ack.nacks)
		assert.Equal(t, 1, ack.rejects)
		assert.False(t, ack.requeue)
		assert.Len(t, target.sent, 5)
		assert.False(t, m.Exists(retryKeyPrefix+"msg-1"))
	})

	t.Run("rejects permanent smtp failure at once", func(t *testing.T) {
		_, retries := newRetryCounter(t)
		target := &recordingNotifier{err: fmt.Errorf("smtp rcpt: %w", &textproto.Error{Code: 550, Msg: "mailbox unavailable"})}
		c := &QueueConsumer{target: target, retries: retries, logger: zap.NewNop()}
		ack := &fakeAck{}

		c.process(context.Background(), amqp091.Delivery{Acknowledger: ack, Body: body, Redelivered: true})
		assert.Equal(t, 0, ack.nacks)
		assert.Equal(t, 1, ack.rejects)
		assert.False(t, ack.requeue)
	})

	t.Run("success clears the attempt count", func(t *testing.T) {
		m, retries := newRetryCounter(t)
		target := &recordingNotifier{err: errors.New("timeout")}
		c := &QueueConsumer{target: target, retries: retries, logger: zap.NewNop()}
		ack := &fakeAck{}
		d := amqp091.Delivery{Acknowledger: ack, Body: body, MessageId: "msg-2"}

		c.process(context.Background(), d)
		assert.True(t, m.Exists(retryKeyPrefix+"msg-2"))

		target.err = nil
		c.process(context.Background(), d)
		assert.Equal(t, 1, ack.acks)
		assert.False(t, m.Exists(retryKeyPrefix+"msg-2"))
	})

	t.Run("without counter a redelivered failure is dropped", func(t *testing.T) {
		c := &QueueConsumer{target: &recordingNotifier{err: errors.New("smtp down")}, logger: zap.NewNop()}
		ack := &fakeAck{}

		c.process(context.Background(), amqp091.Delivery{Acknowledger: ack, Body: body, Redelivered: true})
		assert.Equal(t, 0, ack.nacks)
		assert.Equal(t, 1, ack.rejects)
		assert.False(t, ack.requeue)
	})

	t.Run("drops malformed payload", func(t *testing.T) {
		target := &recordingNotifier{}
		c := &QueueConsumer{target: target, logger: zap.NewNop()}
		ack := &fakeAck{}

		c.process(context.Background(), amqp091.Delivery{Acknowledger: ack, Body: []byte("{not json")})
		assert.Equal(t, 1, ack.rejects)
		assert.False(t, ack.requeue)
		assert.Empty(t, target.sent)
	})
}

func TestRetryKeyFallsBackToBodyDigest(t *testing.T) {
	a := retryKey(amqp091.Delivery{Body: []byte("one")})
	b := retryKey(amqp091.Delivery{Body: []byte("two")})
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, retryKey(amqp091.Delivery{Body: []byte("one")}))
	assert.Equal(t, retryKeyPrefix+"id-1", retryKey(amqp091.Delivery{Body: []byte("one"), MessageId: "id-1"}))
}
