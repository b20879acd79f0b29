package workbook

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/fee-cli/internal/model"
)

// Load reads the reference workbook at path into a new Dataset. The three
// sheets are parsed concurrently; each goroutine touches only its own
// sheet's cells.
func Load(ctx context.Context, path string) (*model.Dataset, error) {
	log := zap.L().With(zap.String("component", "workbook"), zap.String("path", path))
	start := time.Now()

	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "workbook: open file")
	}

	sheets := make(map[Kind]*xlsx.Sheet, len(layouts))
	for kind, layout := range layouts {
		s, err := findSheet(f, layout)
		if err != nil {
			return nil, err
		}
		sheets[kind] = s
	}

	ds := &model.Dataset{Source: path}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		t := readTable(sheets[KindInvestor], layouts[KindInvestor])
		warnMissing(log, KindInvestor, t)
		rows, err := investors(gctx, t)
		ds.Investors = rows
		return err
	})
	g.Go(func() error {
		t := readTable(sheets[KindCompany], layouts[KindCompany])
		warnMissing(log, KindCompany, t)
		rows, err := companies(gctx, t)
		ds.Companies = rows
		return err
	})
	g.Go(func() error {
		t := readTable(sheets[KindFee], layouts[KindFee])
		warnMissing(log, KindFee, t)
		rows, err := feeRows(gctx, t)
		ds.FeeRows = rows
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "workbook: parse sheets")
	}
	ds.LoadedAt = time.Now().UTC()

	inv, co, fr := ds.Counts()
	log.Info("workbook: loaded",
		zap.Int("investors", inv),
		zap.Int("companies", co),
		zap.Int("fee_rows", fr),
		zap.Duration("elapsed", time.Since(start)),
	)
	return ds, nil
}

func warnMissing(log *zap.Logger, kind Kind, t *table) {
	if miss := t.missing(layouts[kind]); len(miss) > 0 {
		log.Warn("workbook: sheet is missing columns",
			zap.String("sheet", string(kind)),
			zap.Strings("columns", miss),
		)
	}
}

func investors(ctx context.Context, t *table) ([]model.Investor, error) {
	out := make([]model.Investor, 0, len(t.rows))
	for _, r := range t.rows {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "workbook: investors cancelled")
		}
		out = append(out, model.Investor{
			ClientRef:      parseRef(t.get(r, ColClientRef)),
			AccountName:    t.get(r, ColAccountName),
			Salutation:     t.get(r, ColSalutation),
			FirstName:      t.get(r, ColFirstName),
			LastName:       t.get(r, ColLastName),
			Email:          t.get(r, ColContactEmail),
			LoginEmail:     t.get(r, ColLoginEmail),
			Classification: t.get(r, ColClassification),
			KYCStatus:      t.get(r, ColKYC),
			AMLStatus:      t.get(r, ColAML),
		})
	}
	return out, nil
}

func companies(ctx context.Context, t *table) ([]model.Company, error) {
	out := make([]model.Company, 0, len(t.rows))
	for _, r := range t.rows {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "workbook: companies cancelled")
		}
		out = append(out, model.Company{
			Name:        t.get(r, ColCompanyName),
			Number:      parseRef(t.get(r, ColCompanyNumber)),
			SharePrice:  parseSharePrice(t.get(r, ColSharePrice)),
			ShareClass:  t.get(r, ColShareClass),
			FundType:    t.get(r, ColFundType),
			GrossAssets: parseDecimal(t.get(r, ColGrossAssets)),
		})
	}
	return out, nil
}

func feeRows(ctx context.Context, t *table) ([]model.FeeRow, error) {
	out := make([]model.FeeRow, 0, len(t.rows))
	for _, r := range t.rows {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "workbook: fee rows cancelled")
		}
		out = append(out, model.FeeRow{
			ClientRef:        parseRef(t.get(r, ColClientRef)),
			InvestorName:     t.get(r, ColInvestorName),
			SubscriptionCode: t.get(r, ColSubscription),
			Fund:             t.get(r, ColFund),
			GrossNet:         t.get(r, ColGrossNet),
			UpfrontPct:       parsePct(t.get(r, ColUpfront)),
			AMCPct:           parsePct(t.get(r, ColAMC)),
			CarryPct:         parsePct(t.get(r, ColCarry)),
			EffectiveDate:    parseDate(t.get(r, ColDepositDate)),
			DepositSeq:       parseInt(t.get(r, ColDepositSeq)),
		})
	}
	return out, nil
}
