package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"sms-scheduler/internal/app"
	"sms-scheduler/internal/domain"
	"sms-scheduler/internal/middleware"
	"sms-scheduler/internal/ports"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Handler holds all HTTP handlers of the scheduler. Services a process does
// not serve may be nil, as long as their routes are not registered.
type Handler struct {
	intake     *app.IntakeService
	dispatcher *app.Dispatcher
	receipts   *app.DeliveryReportService
	log        *slog.Logger
}

// NewHandler wires up a Handler with its dependencies.
func NewHandler(intake *app.IntakeService, dispatcher *app.Dispatcher, receipts *app.DeliveryReportService, log *slog.Logger) *Handler {
	return &Handler{intake: intake, dispatcher: dispatcher, receipts: receipts, log: log}
}

// Register mounts the message and trigger routes onto the given router.
func (h *Handler) Register(router fiber.Router, cronSecret string) {
	router.Post("/messages", middleware.RequireUser(), h.CreateMessage)
	router.Get("/messages", middleware.RequireUser(), h.ListMessages)

	trigger := middleware.RequireCronSecret(cronSecret)
	router.Get("/cron/send-messages", trigger, h.RunDispatch)
	router.Post("/cron/send-messages", trigger, h.RunDispatch)
}

// RegisterDLR mounts the delivery receipt webhook.
func (h *Handler) RegisterDLR(router fiber.Router) {
	router.Post("/dlr", h.HandleDLR)
}

// ── Message intake ────────────────────────────────────────────────────────────

type recipientRequest struct {
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	SendAt string `json:"sendAt"`
}

type createMessageRequest struct {
	Content    string             `json:"content"`
	Recipients []recipientRequest `json:"recipients"`
}

type recipientResponse struct {
	ID                uuid.UUID  `json:"id"`
	Name              string     `json:"name,omitempty"`
	Phone             string     `json:"phone"`
	SendAt            time.Time  `json:"sendAt"`
	Sent              bool       `json:"sent"`
	State             string     `json:"state"`
	SentAt            *time.Time `json:"sentAt,omitempty"`
	ProviderMessageID string     `json:"providerMessageId,omitempty"`
	LastError         string     `json:"lastError,omitempty"`
	DeliveryStatus    string     `json:"deliveryStatus,omitempty"`
}

type messageResponse struct {
	ID         uuid.UUID           `json:"id"`
	UserID     string              `json:"userId"`
	Content    string              `json:"content"`
	CreatedAt  time.Time           `json:"createdAt"`
	Recipients []recipientResponse `json:"recipients"`
}

func toMessageResponse(m domain.Message) messageResponse {
	out := messageResponse{
		ID:         m.ID,
		UserID:     m.UserID,
		Content:    m.Content,
		CreatedAt:  m.CreatedAt,
		Recipients: make([]recipientResponse, 0, len(m.Recipients)),
	}
	for _, r := range m.Recipients {
		out.Recipients = append(out.Recipients, recipientResponse{
			ID:                r.ID,
			Name:              r.Name,
			Phone:             r.Phone,
			SendAt:            r.SendAt,
			Sent:              r.Sent,
			State:             string(r.DeliveryState()),
			SentAt:            r.SentAt,
			ProviderMessageID: r.ProviderMessageID,
			LastError:         r.LastError,
			DeliveryStatus:    r.DeliveryStatus,
		})
	}
	return out
}

// CreateMessage schedules a message for one or more recipients.
//
// POST /messages
// Body: { "content": "...", "recipients": [{ "name": "...", "phone": "+1...", "sendAt": "RFC3339" }] }
func (h *Handler) CreateMessage(c *fiber.Ctx) error {
	var req createMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	drafts := make([]domain.RecipientDraft, 0, len(req.Recipients))
	for _, r := range req.Recipients {
		drafts = append(drafts, domain.RecipientDraft{Name: r.Name, Phone: r.Phone, SendAt: r.SendAt})
	}

	msg, err := h.intake.CreateMessage(c.Context(), app.CreateMessageRequest{
		UserID:     middleware.UserID(c),
		Content:    req.Content,
		Recipients: drafts,
	})
	if err != nil {
		return h.intakeError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Message scheduled successfully",
		"data":    toMessageResponse(msg),
	})
}

// ListMessages returns the caller's messages, newest first.
//
// GET /messages
func (h *Handler) ListMessages(c *fiber.Ctx) error {
	msgs, err := h.intake.ListMessages(c.Context(), middleware.UserID(c))
	if err != nil {
		return h.intakeError(c, err)
	}

	data := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		data = append(data, toMessageResponse(m))
	}
	return c.JSON(fiber.Map{"data": data})
}

func (h *Handler) intakeError(c *fiber.Ctx, err error) error {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "invalid input",
			"details": verr.Violations,
		})
	case errors.Is(err, domain.ErrMissingUser):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	default:
		h.log.Error("message intake", "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "something went wrong"})
	}
}

// ── Dispatch trigger ──────────────────────────────────────────────────────────

// RunDispatch runs the dispatcher once and reports the summary.
//
// GET|POST /cron/send-messages
// Header: Authorization: Bearer <CRON_SECRET>
func (h *Handler) RunDispatch(c *fiber.Ctx) error {
	summary, err := h.dispatcher.RunOnce(c.Context(), time.Now().UTC())
	if err != nil {
		h.log.Error("dispatch run", "run_id", summary.RunID, "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "failed to process messages",
			"summary": summary,
		})
	}

	message := fmt.Sprintf("Processed %d messages", summary.ProcessedCount)
	if summary.ProcessedCount == 0 {
		message = "No messages to send at this time"
	}
	return c.JSON(fiber.Map{
		"message":        message,
		"runId":          summary.RunID,
		"processedCount": summary.ProcessedCount,
		"succeeded":      summary.Succeeded,
		"failed":         summary.Failed,
		"skipped":        summary.Skipped,
		"results":        summary.Results,
	})
}

// ── DLR Webhook ───────────────────────────────────────────────────────────────

type dlrRequest struct {
	ProviderID string `json:"provider_id"`
	Status     string `json:"status"`
}

// HandleDLR receives delivery receipts from the SMS provider.
//
// POST /dlr
// Body: { "provider_id": "...", "status": "delivered"|"failed" }
// or a Twilio status callback form with MessageSid and MessageStatus.
func (h *Handler) HandleDLR(c *fiber.Ctx) error {
	var req dlrRequest
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEApplicationForm) {
		req.ProviderID = c.FormValue("MessageSid")
		req.Status = c.FormValue("MessageStatus")
	} else if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	if req.ProviderID == "" || req.Status == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "provider_id and status are required"})
	}

	err := h.receipts.HandleDLR(c.Context(), ports.DLRPayload{
		ProviderMessageID: req.ProviderID,
		Status:            req.Status,
	})
	switch {
	case err == nil:
		return c.SendStatus(fiber.StatusNoContent)
	case errors.Is(err, domain.ErrInvalidStatus):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown status"})
	case errors.Is(err, domain.ErrRecipientNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown provider_id"})
	default:
		h.log.Error("handle dlr", "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}
}
