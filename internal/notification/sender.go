// Package notification delivers transactional email to end users.
package notification

import "context"

// Sender delivers a verification email carrying the given link. A returned
// error means the message was not handed off for delivery.
type Sender interface {
	SendVerificationEmail(ctx context.Context, address, link string) error
}
