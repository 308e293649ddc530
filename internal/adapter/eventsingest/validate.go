package eventsingest

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/feedpipeline/feedsvc/internal/domain"
)

// EventRequest is the wire shape of one event in an HTTP batch request, per
// spec.md §6's POST /events body. There is no client-supplied event_id: the
// server derives the idempotency key.
type EventRequest struct {
	Ts       *int64  `json:"ts,omitempty"`
	UserID   string  `json:"user_id" validate:"required"`
	PostID   string  `json:"post_id" validate:"required"`
	AuthorID string  `json:"author_id"`
	Action   string  `json:"action" validate:"required"`
	DwellMS  *uint64 `json:"dwell_ms,omitempty"`
	Device   string  `json:"device"`
	AppVer   string  `json:"app_ver"`
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// Validate checks required fields and action membership, grounded on
// spec.md §6's POST /events contract. ts defaults to server time if absent.
// event_id is not part of the wire shape; the server mints one so clients
// never need to generate their own idempotency key.
func Validate(req EventRequest) (domain.InteractionEvent, error) {
	if err := getValidator().Struct(req); err != nil {
		return domain.InteractionEvent{}, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	if _, ok := domain.ValidActions[domain.Action(req.Action)]; !ok {
		return domain.InteractionEvent{}, fmt.Errorf("%w: action %q not allowed", domain.ErrInvalidArgument, req.Action)
	}

	eventTime := time.Now().UTC()
	if req.Ts != nil {
		eventTime = time.UnixMilli(*req.Ts).UTC()
	}

	return domain.InteractionEvent{
		EventID:   uuid.New().String(),
		UserID:    req.UserID,
		PostID:    req.PostID,
		AuthorID:  req.AuthorID,
		Action:    domain.Action(req.Action),
		DwellMS:   req.DwellMS,
		Device:    req.Device,
		AppVer:    req.AppVer,
		EventTime: eventTime,
	}, nil
}
