package loader

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"github.com/medscout/rxsearch/pkg/config"
	"github.com/medscout/rxsearch/pkg/index"
	"github.com/medscout/rxsearch/pkg/rxerr"
)

// Source yields one drug document per active NDC.
type Source interface {
	// Scan invokes fn for every document. A non-nil return from fn
	// aborts the scan.
	Scan(ctx context.Context, fn func(*index.DrugDocument) error) error

	Close() error
}

// drugQuery joins the NDC table with the drug-code, class and labeler
// cross-references. An active NDC is one whose obsolete date is null.
const drugQuery = `
SELECT
	LPAD(TRIM(n.ndc), 11, '0')           AS ndc,
	TRIM(COALESCE(n.bn, ''))             AS brand_name,
	TRIM(COALESCE(n.innov, ''))          AS innov,
	TRIM(COALESCE(n.dea, ''))            AS dea,
	n.gcn_seqno                          AS gcn_seqno,
	TRIM(COALESCE(g.str, ''))            AS strength,
	TRIM(COALESCE(df.gcdf_desc, ''))     AS dosage_form,
	TRIM(COALESCE(rt.gcrt_desc, ''))     AS route,
	TRIM(COALESCE(hic.hic_desc, ''))     AS ingredient,
	TRIM(COALESCE(hc.hic3_desc, ''))     AS therapeutic_class,
	TRIM(COALESCE(lb.mfg, ''))           AS manufacturer
FROM rndc14 n
JOIN rgcnseq4 g     ON g.gcn_seqno = n.gcn_seqno
LEFT JOIN rgcdf1 df  ON df.gcdf = g.gcdf
LEFT JOIN rgcrt1 rt  ON rt.gcrt = g.gcrt
LEFT JOIN rhclass hc ON hc.hic3 = g.hic3
LEFT JOIN rhiclsq1 hs ON hs.hicl_seqno = g.hicl_seqno
LEFT JOIN rhicd1 hic  ON hic.hic_seqn = hs.hic_seqn
LEFT JOIN rlblrid2 lb ON lb.lblrid = n.lblrid
WHERE n.obsdtec IS NULL`

// FDBSource reads the upstream relational drug database.
type FDBSource struct {
	db *sql.DB
}

// NewFDBSource opens the relational source.
func NewFDBSource(cfg *config.SourceConfig) (*FDBSource, error) {
	if cfg.DSN == "" {
		return nil, rxerr.New(rxerr.KindInvalidInput, "source dsn is required")
	}
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open source database: %w", err)
	}
	return &FDBSource{db: db}, nil
}

func (s *FDBSource) Scan(ctx context.Context, fn func(*index.DrugDocument) error) error {
	rows, err := s.db.QueryContext(ctx, drugQuery)
	if err != nil {
		return rxerr.Wrap(rxerr.KindUpstreamUnavailable, "drug query failed", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r        sourceRow
			gcnSeqno sql.NullInt64
		)
		if err := rows.Scan(
			&r.ndc, &r.brandName, &r.innov, &r.dea, &gcnSeqno,
			&r.strength, &r.dosageForm, &r.route,
			&r.ingredient, &r.therapeuticClass, &r.manufacturer,
		); err != nil {
			return rxerr.Wrap(rxerr.KindUpstreamUnavailable, "drug row scan failed", err)
		}
		r.gcnSeqno = gcnSeqno.Int64

		if err := fn(buildDocument(&r)); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return rxerr.Wrap(rxerr.KindUpstreamUnavailable, "drug row iteration failed", err)
	}
	return nil
}

func (s *FDBSource) Close() error {
	return s.db.Close()
}

type sourceRow struct {
	ndc              string
	brandName        string
	innov            string
	dea              string
	gcnSeqno         int64
	strength         string
	dosageForm       string
	route            string
	ingredient       string
	therapeuticClass string
	manufacturer     string
}

// buildDocument maps one upstream row to the indexed document shape.
func buildDocument(r *sourceRow) *index.DrugDocument {
	drugClass := strings.ToUpper(r.ingredient)

	name := r.brandName
	if name == "" {
		name = drugClass
	}

	dea := r.dea
	if dea == "0" {
		dea = ""
	}

	return &index.DrugDocument{
		NDC:              r.ndc,
		DrugName:         joinLabel(name, r.strength, strings.ToUpper(r.dosageForm)),
		BrandName:        r.brandName,
		GenericName:      strings.ToLower(r.ingredient),
		DrugClass:        drugClass,
		TherapeuticClass: strings.ToUpper(r.therapeuticClass),
		GCNSeqno:         r.gcnSeqno,
		DosageForm:       strings.ToUpper(r.dosageForm),
		Strength:         r.strength,
		Route:            strings.ToUpper(r.route),
		ManufacturerName: r.manufacturer,
		IsGeneric:        DeriveIsGeneric(r.innov),
		IsActive:         true,
		DEASchedule:      dea,
	}
}

func joinLabel(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}
