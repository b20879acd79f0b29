package letter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fee-cli/internal/compliance"
	"github.com/sells-group/fee-cli/internal/fee"
	"github.com/sells-group/fee-cli/internal/metrics"
	"github.com/sells-group/fee-cli/internal/model"
	"github.com/sells-group/fee-cli/internal/resolve"
	"github.com/sells-group/fee-cli/internal/store"
	"github.com/sells-group/fee-cli/internal/workbook"
)

// Service prepares fee letter payloads. It holds no per-request state and
// is safe for concurrent use.
type Service struct {
	resolver  *resolve.Resolver
	calc      *fee.Calculator
	gate      *compliance.Gate
	defaults  fee.Defaults
	store     store.Store
	metrics   *metrics.Metrics
	auditPath string
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithStore records calculations and activity in st.
func WithStore(st store.Store) Option {
	return func(s *Service) { s.store = st }
}

// WithMetrics records Prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithAuditPath appends a row to the audit workbook at path for every ready
// letter.
func WithAuditPath(path string) Option {
	return func(s *Service) { s.auditPath = path }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service.
func NewService(r *resolve.Resolver, c *fee.Calculator, g *compliance.Gate, defaults fee.Defaults, opts ...Option) *Service {
	s := &Service{
		resolver: r,
		calc:     c,
		gate:     g,
		defaults: defaults,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Prepare resolves the request against ds and builds the letter payload.
// Unresolvable entities yield StatusNeedsClarification and compliance
// violations yield StatusBlocked; neither is an error. Calculation and
// storage failures are returned as errors.
func (s *Service) Prepare(ctx context.Context, ds *model.Dataset, req Request) (*Payload, error) {
	if ds == nil {
		return nil, eris.New("letter: no dataset loaded")
	}
	log := zap.L().With(
		zap.String("component", "letter"),
		zap.String("investor_query", req.Investor),
		zap.String("company_query", req.Company),
	)

	p := &Payload{GeneratedAt: s.now().UTC()}
	s.logActivity(ctx, log, store.Activity{
		Kind:    store.ActivityRequest,
		Status:  "received",
		Message: fmt.Sprintf("investor=%q company=%q amount=%s", req.Investor, req.Company, req.Amount),
	})

	invOut := s.resolver.Investor(req.Investor, ds.Investors)
	s.observeResolution("investor", invOut.Kind, invOut.Tier)
	inv, ok := invOut.Unique()
	if !ok {
		p.Clarifications = append(p.Clarifications, clarify("investor", req.Investor, invOut.Kind, invOut.Candidates, invOut.Total))
	}

	coOut := s.resolver.Company(req.Company, ds.Companies)
	s.observeResolution("company", coOut.Kind, coOut.Tier)
	co, coOK := coOut.Unique()
	if !coOK {
		p.Clarifications = append(p.Clarifications, clarify("company", req.Company, coOut.Kind, coOut.Candidates, coOut.Total))
	}

	if !ok || !coOK {
		p.Status = StatusNeedsClarification
		log.Info("letter: needs clarification", zap.Int("clarifications", len(p.Clarifications)))
		s.logActivity(ctx, log, store.Activity{
			Kind:    store.ActivityValidation,
			Status:  string(p.Status),
			Message: clarificationMessages(p.Clarifications),
		})
		return p, nil
	}

	frOut := s.resolver.ResolveFeeRow(ds.FeeRows, inv.ClientRef, req.SubscriptionHint, inv.FullName())
	s.observeResolution("fee_row", frOut.Kind, frOut.Tier)
	if frOut.IsAmbiguous() {
		p.Status = StatusNeedsClarification
		p.Clarifications = append(p.Clarifications, clarify("fee_row", inv.FullName(), frOut.Kind, frOut.Candidates, frOut.Total))
		s.logActivity(ctx, log, store.Activity{
			Kind:      store.ActivityValidation,
			Status:    string(p.Status),
			ClientRef: inv.ClientRef,
			Message:   clarificationMessages(p.Clarifications),
		})
		return p, nil
	}

	var row *model.FeeRow
	if fr, found := frOut.Unique(); found {
		row = &fr
	} else {
		log.Warn("letter: no fee row matched, using default rates",
			zap.String("client_ref", inv.ClientRef),
			zap.String("investor", inv.FullName()),
		)
	}

	structure, src, err := fee.ResolveStructure(row, s.defaults, req.Overrides)
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

	if req.SharePrice != nil {
		co.SharePrice.Decimal, co.SharePrice.Valid = *req.SharePrice, true
	}
	if c := strings.TrimSpace(req.ShareClass); c != "" {
		co.ShareClass = c
	}

	verdict := s.gate.Evaluate(compliance.Request{
		Investor:          &inv,
		Company:           &co,
		Calculation:       result,
		UsingDefaultRates: src.UsingDefaultRates,
	})
	if s.metrics != nil {
		s.metrics.ObserveCompliance(verdict.Valid, string(verdict.RiskTier))
		if src.UsingDefaultRates {
			s.metrics.IncrementDefaultRates()
		}
	}

	summary := result.Summarize()
	p.Status = StatusReady
	if !verdict.Valid {
		p.Status = StatusBlocked
	}
	p.Investor = investorInfo(inv)
	p.Company = &CompanyInfo{
		Name:       co.Name,
		Number:     co.Number,
		SharePrice: co.SharePrice,
		ShareClass: co.ShareClassOrDefault(),
		FundType:   co.FundType,
	}
	p.FeeContext = &FeeContext{
		Reference:  SubscriptionReference(feeRowCode(row), inv, co, structure.InvestorType),
		FeeRowTier: frOut.Tier.String(),
		Source:     src,
	}
	if row != nil {
		p.FeeContext.SubscriptionCode = row.SubscriptionCode
		p.FeeContext.Fund = row.Fund
	}
	p.Calculation = result
	p.Summary = &summary
	p.Compliance = &verdict
	p.UsingDefaultRates = src.UsingDefaultRates

	s.logActivity(ctx, log, store.Activity{
		Kind:      store.ActivityValidation,
		Status:    string(p.Status),
		ClientRef: inv.ClientRef,
		Message:   verdict.Message,
	})

	if !req.DryRun {
		if err := s.record(ctx, req, p); err != nil {
			return nil, err
		}
	}

	log.Info("letter: prepared",
		zap.String("status", string(p.Status)),
		zap.String("client_ref", inv.ClientRef),
		zap.String("hash", result.Hash),
		zap.Bool("using_default_rates", p.UsingDefaultRates),
	)
	return p, nil
}

// record writes the calculation to the store and, for ready letters, the
// audit workbook.
func (s *Service) record(ctx context.Context, req Request, p *Payload) error {
	result := p.Calculation
	if s.store != nil {
		body, err := json.Marshal(result)
		if err != nil {
			return eris.Wrap(err, "letter: marshal calculation")
		}
		rec, created, err := s.store.SaveCalculation(ctx, store.CalculationRecord{
			Hash:              result.Hash,
			ClientRef:         p.Investor.ClientRef,
			InvestorName:      p.Investor.FullName,
			CompanyName:       p.Company.Name,
			Direction:         string(result.Direction),
			InvestorType:      string(result.InvestorType),
			Amount:            req.Amount,
			GrossInvestment:   result.GrossInvestment,
			TotalFees:         result.TotalFees,
			TotalTransfer:     result.TotalTransfer,
			UsingDefaultRates: p.UsingDefaultRates,
			Status:            string(p.Status),
			Result:            body,
		})
		if err != nil {
			return eris.Wrap(err, "letter: save calculation")
		}
		p.AuditID = rec.ID
		p.AuditDuplicate = !created

		detail, _ := json.Marshal(map[string]any{"hash": result.Hash, "method": result.Method, "duplicate": !created})
		s.logActivity(ctx, zap.L(), store.Activity{
			Kind:      store.ActivityCalculation,
			Status:    string(p.Status),
			ClientRef: p.Investor.ClientRef,
			Message:   fee.Display(result.TotalTransfer),
			Detail:    detail,
		})
	}

	if s.auditPath == "" || p.Status != StatusReady {
		return nil
	}
	err := workbook.AppendAuditRow(s.auditPath, workbook.AuditRow{
		Account:        req.Account,
		ClientRef:      p.Investor.ClientRef,
		InvestorName:   p.Investor.FullName,
		InvestorEmail:  p.Investor.Email,
		UpfrontPct:     result.Structure.UpfrontPct,
		AMCPct:         result.Structure.AMC13Pct,
		CarryPct:       result.Structure.PerformancePct,
		AmountInvested: result.GrossInvestment,
		TotalFees:      result.TotalFees,
		GrossNet:       titleCase(string(result.Direction)),
		Fund:           fundLabel(p.FeeContext.Fund, result.InvestorType),
		Generated:      p.GeneratedAt,
	})
	return eris.Wrap(err, "letter: append audit row")
}

func (s *Service) observeResolution(entity string, kind resolve.Kind, tier resolve.Tier) {
	if s.metrics != nil {
		s.metrics.ObserveResolution(entity, kind.String(), tier.String())
	}
}

// logActivity writes a to the activity log. A failure is logged, never returned.
func (s *Service) logActivity(ctx context.Context, log *zap.Logger, a store.Activity) {
	if s.store == nil {
		return
	}
	if err := s.store.LogActivity(ctx, a); err != nil {
		log.Warn("letter: activity not recorded", zap.String("kind", string(a.Kind)), zap.Error(err))
	}
}

func clarify(entity, query string, kind resolve.Kind, candidates []resolve.Candidate, total int) Clarification {
	c := Clarification{
		Entity:     entity,
		Query:      query,
		Reason:     kind.String(),
		Candidates: candidates,
		Total:      total,
	}
	label := strings.ReplaceAll(entity, "_", " ")
	switch {
	case strings.TrimSpace(query) == "":
		c.Message = fmt.Sprintf("No %s was given.", label)
	case kind == resolve.KindAmbiguous:
		c.Message = fmt.Sprintf("%q matches %d %ss. Please specify which one.", query, total, label)
	default:
		c.Message = fmt.Sprintf("No %s matches %q. Check the spelling or use an email or reference.", label, query)
	}
	return c
}

func clarificationMessages(cs []Clarification) string {
	msgs := make([]string, 0, len(cs))
	for _, c := range cs {
		msgs = append(msgs, c.Message)
	}
	return strings.Join(msgs, " ")
}

func investorInfo(inv model.Investor) *InvestorInfo {
	return &InvestorInfo{
		ClientRef:      inv.ClientRef,
		Salutation:     inv.SalutationOrDefault(),
		FirstName:      inv.FirstName,
		LastName:       inv.LastName,
		FullName:       inv.FullName(),
		Email:          inv.ContactEmail(),
		Classification: inv.Classification,
	}
}

func feeRowCode(row *model.FeeRow) string {
	if row == nil {
		return ""
	}
	return row.SubscriptionCode
}

func fundLabel(fund string, typ fee.InvestorType) string {
	if f := strings.TrimSpace(fund); f != "" {
		return f
	}
	return titleCase(string(typ))
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
