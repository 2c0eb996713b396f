// services/errors.go
package services

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
)

// Named error kinds surfaced by the ledgers and the orchestrator. Every
// mutating operation either fully commits or fails with one of these.
var (
	// Authorization
	ErrUnauthorized       = errors.New("unauthorized")
	ErrWorkerOnly         = errors.New("worker only")
	ErrNotApprovedCreator = errors.New("creator not approved")

	// State transitions
	ErrInvalidStatusTransition = errors.New("invalid status transition")

	// Temporal
	ErrDeadlineElapsed   = errors.New("deadline elapsed")
	ErrDeadlineNotFuture = errors.New("deadline not in the future")

	// Validation
	ErrInvalidQuest        = errors.New("invalid quest")
	ErrInvalidVerification = errors.New("invalid verification type")
	ErrInvalidProof        = errors.New("invalid proof reference")
	ErrInvalidAmount       = errors.New("invalid amount")

	// Already settled
	ErrRewardAlreadyClaimed = errors.New("reward already claimed")
	ErrNothingToRelease     = errors.New("nothing to release")
	ErrNothingToRefund      = errors.New("nothing to refund")
	ErrEscrowExists         = errors.New("escrow already funded")

	// Missing records
	ErrQuestNotFound = errors.New("quest not found")

	// External asset ledger
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
)

// userMessages maps each error kind to the message shown to callers. Raw
// low-level errors are never returned when a mapped kind exists.
var userMessages = map[error]string{
	ErrUnauthorized:            "You are not allowed to perform this action",
	ErrWorkerOnly:              "Only the assigned worker can perform this action",
	ErrNotApprovedCreator:      "Your address is not approved to create quests",
	ErrInvalidStatusTransition: "The quest is not in a state that allows this action",
	ErrDeadlineElapsed:         "The quest deadline has already passed",
	ErrDeadlineNotFuture:       "The deadline must be in the future",
	ErrInvalidQuest:            "Quest title and reward are required",
	ErrInvalidVerification:     "Verification type must be photo, video or gps",
	ErrInvalidProof:            "A proof reference is required",
	ErrInvalidAmount:           "Amount must be a positive integer quantity",
	ErrRewardAlreadyClaimed:    "This reward has already been claimed",
	ErrNothingToRelease:        "Escrow for this quest is missing or already settled",
	ErrNothingToRefund:         "Escrow for this quest is missing or already settled",
	ErrEscrowExists:            "Escrow for this quest is already funded",
	ErrQuestNotFound:           "Quest not found",
	ErrInsufficientBalance:     "Insufficient token balance",
	ErrInsufficientAllowance:   "Token allowance too low — approve the quest arcade first",
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrWorkerOnly),
		errors.Is(err, ErrNotApprovedCreator):
		return fiber.StatusForbidden
	case errors.Is(err, ErrQuestNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrInvalidStatusTransition),
		errors.Is(err, ErrRewardAlreadyClaimed),
		errors.Is(err, ErrNothingToRelease),
		errors.Is(err, ErrNothingToRefund),
		errors.Is(err, ErrEscrowExists):
		return fiber.StatusConflict
	case errors.Is(err, ErrDeadlineElapsed):
		return fiber.StatusGone
	case errors.Is(err, ErrDeadlineNotFuture),
		errors.Is(err, ErrInvalidQuest),
		errors.Is(err, ErrInvalidVerification),
		errors.Is(err, ErrInvalidProof),
		errors.Is(err, ErrInvalidAmount):
		return fiber.StatusBadRequest
	case errors.Is(err, ErrInsufficientBalance),
		errors.Is(err, ErrInsufficientAllowance):
		return fiber.StatusPaymentRequired
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError maps a service error onto the HTTP response. Unmapped errors
// are logged and collapsed into a generic message.
func respondError(c *fiber.Ctx, err error) error {
	for kind, msg := range userMessages {
		if errors.Is(err, kind) {
			return c.Status(statusForError(err)).JSON(fiber.Map{"error": msg})
		}
	}
	log.Printf("unmapped error on %s: %v", c.Path(), err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
}
