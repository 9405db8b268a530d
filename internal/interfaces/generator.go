package interfaces

import (
	"context"

	"github.com/ikemenltd/gasgen/internal/models"
)

// Generator defines the interface for the code-generation backend.
// Implementations impose their own per-call timeout; callers may layer a
// stricter one through ctx.
type Generator interface {
	// Generate produces a code artifact for the assembled context.
	Generate(ctx context.Context, convCtx *models.ConversationContext) (string, error)

	// HealthCheck verifies the backend is reachable and authenticated.
	HealthCheck(ctx context.Context) error
}
