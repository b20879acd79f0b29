package letter

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/fee-cli/internal/fee"
	"github.com/sells-group/fee-cli/internal/resolve"
	"github.com/sells-group/fee-cli/internal/store"
)

// QuoteRequest asks for a calculation without resolving any entities.
type QuoteRequest struct {
	Amount    decimal.Decimal `json:"amount" yaml:"amount"`
	Overrides fee.Overrides   `json:"overrides" yaml:"overrides"`
}

// Quote is a calculation against the house defaults and any overrides.
type Quote struct {
	Calculation *fee.Result `json:"calculation" yaml:"calculation"`
	Summary     fee.Summary `json:"summary" yaml:"summary"`
	Source      fee.Source  `json:"source" yaml:"source"`
}

// Quote calculates fees for req.Amount. No fee row is consulted, so every
// rate comes from an override or the defaults.
func (s *Service) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	structure, src, err := fee.ResolveStructure(nil, s.defaults, req.Overrides)
	if err != nil {
		return nil, eris.Wrap(err, "letter: resolve fee structure")
	}

	start := time.Now()
	result, err := s.calc.Calculate(req.Amount, src.Direction, structure.InvestorType, structure)
	if s.metrics != nil {
		s.metrics.ObserveCalculation(start, string(src.Direction), string(structure.InvestorType), err)
	}
	if err != nil {
		return nil, eris.Wrap(err, "letter: calculate fees")
	}

	s.logActivity(ctx, zap.L().With(zap.String("component", "letter")), store.Activity{
		Kind:    store.ActivityCalculation,
		Status:  "quoted",
		Message: "hash " + result.Hash,
	})
	return &Quote{Calculation: result, Summary: result.Summarize(), Source: src}, nil
}

// Resolver returns the resolver the service matches entities with.
func (s *Service) Resolver() *resolve.Resolver { return s.resolver }

// LogRefresh records a reference workbook load in the activity log.
func (s *Service) LogRefresh(ctx context.Context, source string, loadErr error) {
	a := store.Activity{Kind: store.ActivityRefresh, Status: "loaded", Message: source}
	if loadErr != nil {
		a.Status = "failed"
		a.Message = source + ": " + loadErr.Error()
	}
	s.logActivity(ctx, zap.L().With(zap.String("component", "letter")), a)
}
