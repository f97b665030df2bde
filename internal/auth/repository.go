package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// Querier is the subset of pgxpool.Pool the repository needs.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type UserRepository struct {
	DB Querier
}

func NewUserRepository(db Querier) *UserRepository {
	return &UserRepository{DB: db}
}

const userColumns = `"id","email","password","name","isVerified","verificationCode","verificationCodeExpiresAt","createdAt","updatedAt"`

func (r *UserRepository) Create(ctx context.Context, u *User) error {
	row := r.DB.QueryRow(ctx, `
		INSERT INTO "User"
		("id","email","password","name","isVerified","verificationCode","verificationCodeExpiresAt")
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING "createdAt","updatedAt"
	`, u.ID, u.Email, u.PasswordHash, u.Name, u.IsVerified, u.VerificationCode, u.VerificationCodeExpiresAt)

	if err := row.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return err
	}
	return nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := r.DB.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM "User"
		WHERE "email"=$1
	`, email)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return user, err
}

func (r *UserRepository) FindByVerificationCode(ctx context.Context, code string, now time.Time) (*User, error) {
	row := r.DB.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM "User"
		WHERE "verificationCode"=$1 AND "verificationCodeExpiresAt" > $2
		ORDER BY "createdAt" ASC
		LIMIT 1
	`, code, now)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return user, err
}

func (r *UserRepository) Update(ctx context.Context, u *User) error {
	row := r.DB.QueryRow(ctx, `
		UPDATE "User"
		SET "email"=$1,
		    "name"=$2,
		    "isVerified"=$3,
		    "verificationCode"=$4,
		    "verificationCodeExpiresAt"=$5,
		    "updatedAt"=NOW()
		WHERE "id"=$6
		RETURNING "updatedAt"
	`, u.Email, u.Name, u.IsVerified, u.VerificationCode, u.VerificationCodeExpiresAt, u.ID)

	if err := row.Scan(&u.UpdatedAt); err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return ErrUserNotFound
		case isUniqueViolation(err):
			return ErrDuplicateEmail
		}
		return err
	}
	return nil
}

func (r *UserRepository) ConsumeVerificationCode(ctx context.Context, id, code string, now time.Time) (*User, error) {
	row := r.DB.QueryRow(ctx, `
		UPDATE "User"
		SET "isVerified"=TRUE,
		    "verificationCode"=NULL,
		    "verificationCodeExpiresAt"=NULL,
		    "updatedAt"=NOW()
		WHERE "id"=$1 AND "verificationCode"=$2 AND "verificationCodeExpiresAt" > $3
		RETURNING `+userColumns, id, code, now)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return user, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func scanUser(row pgx.Row) (*User, error) {
	var (
		id               string
		email            string
		password         string
		name             string
		isVerified       bool
		verificationCode *string
		codeExpiresAt    *time.Time
		createdAt        time.Time
		updatedAt        time.Time
	)

	if err := row.Scan(
		&id,
		&email,
		&password,
		&name,
		&isVerified,
		&verificationCode,
		&codeExpiresAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	return &User{
		ID:                        id,
		Email:                     email,
		PasswordHash:              password,
		Name:                      name,
		IsVerified:                isVerified,
		VerificationCode:          verificationCode,
		VerificationCodeExpiresAt: codeExpiresAt,
		CreatedAt:                 createdAt,
		UpdatedAt:                 updatedAt,
	}, nil
}
