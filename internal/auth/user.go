package auth

import "time"

// User is the credential record. PasswordHash never leaves the process.
type User struct {
	ID                        string     `json:"id"`
	Email                     string     `json:"email"`
	PasswordHash              string     `json:"-"`
	Name                      string     `json:"name"`
	IsVerified                bool       `json:"isVerified"`
	VerificationCode          *string    `json:"verificationCode"`
	VerificationCodeExpiresAt *time.Time `json:"verificationCodeExpiresAt"`
	CreatedAt                 time.Time  `json:"createdAt"`
	UpdatedAt                 time.Time  `json:"updatedAt"`
}

// SetVerificationCode stores a code together with its expiry.
func (u *User) SetVerificationCode(code string, expires time.Time) {
	u.VerificationCode = &code
	u.VerificationCodeExpiresAt = &expires
}

// MarkVerified flags the user verified and drops the pending code.
func (u *User) MarkVerified() {
	u.IsVerified = true
	u.VerificationCode = nil
	u.VerificationCodeExpiresAt = nil
}

func (u *User) clone() *User {
	c := *u
	if u.VerificationCode != nil {
		code := *u.VerificationCode
		c.VerificationCode = &code
	}
	if u.VerificationCodeExpiresAt != nil {
		exp := *u.VerificationCodeExpiresAt
		c.VerificationCodeExpiresAt = &exp
	}
	return &c
}
