// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// ErrCampaignNotFound is returned when a campaign does not exist for the tenant.
type ErrCampaignNotFound struct {
	TenantID   string
	CampaignID string
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign %s not found for tenant %s", e.CampaignID, e.TenantID)
}

func NewCampaignNotFound(tenantID, id string) error {
	return &ErrCampaignNotFound{TenantID: tenantID, CampaignID: id}
}

// ErrNotificationNotFound covers both unknown ids and records whose status
// no longer accepts the requested transition.
type ErrNotificationNotFound struct {
	TenantID       string
	NotificationID string
}

func (e *ErrNotificationNotFound) Error() string {
	return fmt.Sprintf("notification %s not found or not updatable for tenant %s", e.NotificationID, e.TenantID)
}

func NewNotificationNotFound(tenantID, id string) error {
	return &ErrNotificationNotFound{TenantID: tenantID, NotificationID: id}
}

// ErrInvalidEngagement rejects engagement events with a missing id or an
// unknown type.
var ErrInvalidEngagement = errors.New("invalid engagement event")

// TransportErrorCode is recorded when the push request never got a status code.
const TransportErrorCode = "ERR"

// DeliveryError is a push that was not accepted by the push service.
type DeliveryError struct {
	Code       string
	StatusCode int
	Gone       bool
	Message    string
}

func (e *DeliveryError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("push delivery failed (%s): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("push delivery failed with status %d: %s", e.StatusCode, e.Message)
}

// AsDeliveryError unwraps err into a DeliveryError. Anything else becomes a
// transient failure with the generic transport code.
func AsDeliveryError(err error) *DeliveryError {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de
	}
	return &DeliveryError{Code: TransportErrorCode, Message: err.Error()}
}

func IsNotFound(err error) bool {
	var c *ErrCampaignNotFound
	var n *ErrNotificationNotFound
	return errors.As(err, &c) || errors.As(err, &n)
}
