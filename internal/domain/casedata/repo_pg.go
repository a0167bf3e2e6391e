package casedata

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG creates the PostgreSQL-backed case_data repository.
func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const caseCols = `bill_id, bill_test_id, test_id, test_result_id, age_in_hours, age_group, sex,
	cp_instance_id, l_id, fqdn,
	parameter_id, parameter_name, parameter_printas, parameter_unit,
	value_float, value_text,
	nrval_analysis, help_list,
	created_at, updated_at, bill_date_quarter`

func scanRecord(row pgx.Row) (*Record, error) {
	var r Record
	err := row.Scan(&r.BillID, &r.BillTestID, &r.TestID, &r.TestResultID, &r.AgeInHours, &r.AgeGroup, &r.Sex,
		&r.CPInstanceID, &r.LID, &r.FQDN,
		&r.ParameterID, &r.ParameterName, &r.ParameterPrintAs, &r.ParameterUnit,
		&r.ValueFloat, &r.ValueText,
		&r.NRValAnalysis, &r.HelpList,
		&r.CreatedAt, &r.UpdatedAt, &r.BillDateQuarter)
	return &r, err
}

func (p *repoPG) collect(rows pgx.Rows) ([]*Record, error) {
	defer rows.Close()
	var items []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

func (p *repoPG) GetByPrimaryKey(ctx context.Context, key PrimaryKey) (*Record, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+caseCols+` FROM case_data
		WHERE sex = $1
		  AND parameter_printas = $2
		  AND age_group = $3
		  AND bill_date_quarter = $4
		  AND cp_instance_id = $5
		  AND test_result_id = $6`,
		key.Sex, key.ParameterPrintAs, key.AgeGroup, key.BillDateQuarter, key.CPInstanceID, key.TestResultID)
	r, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (p *repoPG) Insert(ctx context.Context, r *Record) error {
	_, err := p.pool.Exec(ctx, `INSERT INTO case_data (`+caseCols+`) VALUES (
		$1, $2, $3, $4, $5, $6, $7,
		$8, $9, $10,
		$11, $12, $13, $14,
		$15, $16,
		$17, $18,
		$19, $20, $21)`,
		r.BillID, r.BillTestID, r.TestID, r.TestResultID, r.AgeInHours, r.AgeGroup, r.Sex,
		r.CPInstanceID, r.LID, r.FQDN,
		r.ParameterID, r.ParameterName, r.ParameterPrintAs, r.ParameterUnit,
		r.ValueFloat, r.ValueText,
		r.NRValAnalysis, r.HelpList,
		r.CreatedAt, r.UpdatedAt, r.BillDateQuarter)
	return err
}

func (p *repoPG) Update(ctx context.Context, r *Record) error {
	_, err := p.pool.Exec(ctx, `UPDATE case_data SET
		bill_id = $1, bill_test_id = $2, test_id = $3, age_in_hours = $4,
		l_id = $5, fqdn = $6,
		parameter_id = $7, parameter_name = $8, parameter_unit = $9,
		value_float = $10, value_text = $11,
		nrval_analysis = $12, help_list = $13,
		updated_at = $14
		WHERE sex = $15
		  AND parameter_printas = $16
		  AND age_group = $17
		  AND bill_date_quarter = $18
		  AND cp_instance_id = $19
		  AND test_result_id = $20`,
		r.BillID, r.BillTestID, r.TestID, r.AgeInHours,
		r.LID, r.FQDN,
		r.ParameterID, r.ParameterName, r.ParameterUnit,
		r.ValueFloat, r.ValueText,
		r.NRValAnalysis, r.HelpList,
		r.UpdatedAt,
		r.Sex, r.ParameterPrintAs, r.AgeGroup, r.BillDateQuarter, r.CPInstanceID, r.TestResultID)
	return err
}

func (p *repoPG) UpdateValueText(ctx context.Context, key PrimaryKey, valueText string) error {
	_, err := p.pool.Exec(ctx, `UPDATE case_data SET value_text = $1, updated_at = NOW()
		WHERE sex = $2
		  AND parameter_printas = $3
		  AND age_group = $4
		  AND bill_date_quarter = $5
		  AND cp_instance_id = $6
		  AND test_result_id = $7`,
		valueText,
		key.Sex, key.ParameterPrintAs, key.AgeGroup, key.BillDateQuarter, key.CPInstanceID, key.TestResultID)
	return err
}

func (p *repoPG) GetByBillID(ctx context.Context, billID string) ([]*Record, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+caseCols+` FROM case_data WHERE bill_id = $1`, billID)
	if err != nil {
		return nil, err
	}
	return p.collect(rows)
}

func (p *repoPG) SearchBillIDs(ctx context.Context, f TextSearchField, parameterNames []string, limit int) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT bill_id FROM case_data
		WHERE sex = $1
		  AND parameter_printas = ANY($2)
		  AND age_group = $3
		  AND bill_date_quarter = $4
		LIMIT $5`,
		f.Sex, parameterNames, f.AgeGroup, f.BillDateQuarter, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var billIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		billIDs = append(billIDs, id)
	}
	return billIDs, rows.Err()
}

func (p *repoPG) SearchByValueRange(ctx context.Context, f SearchField, min, max float64) ([]*Record, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+caseCols+` FROM case_data
		WHERE sex = $1
		  AND parameter_printas = $2
		  AND age_group = $3
		  AND bill_date_quarter = $4
		  AND value_float >= $5
		  AND value_float <= $6`,
		f.Sex, f.ParameterPrintAs, f.AgeGroup, f.BillDateQuarter, min, max)
	if err != nil {
		return nil, err
	}
	return p.collect(rows)
}
