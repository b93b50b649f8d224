package allocation

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"housing-allocation-backend/internal/models"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Beneficiary CSV columns, after a header row:
// rut, first name, last name, email, socioeconomic score, household income,
// household size, municipality id, status.
const beneficiaryColumns = 9

type ImportResult struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}

// ImportBeneficiaries reads a beneficiary CSV. Malformed rows and already
// registered RUTs are skipped and counted.
func (s *Service) ImportBeneficiaries(ctx context.Context, r io.Reader) (*ImportResult, error) {
	log := s.logger.WithField("func", "ImportBeneficiaries")

	br := bufio.NewReader(r)
	reader := csv.NewReader(br)
	reader.FieldsPerRecord = -1
	sample, _ := br.Peek(1024)
	if !strings.Contains(string(sample), ",") && strings.Contains(string(sample), "\t") {
		reader.Comma = '\t'
	}

	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}

	result := &ImportResult{}
	rowNum := 0
	for {
		record, err := reader.Read()
		rowNum++
		if err == io.EOF {
			break
		}
		if err != nil {
			log.WithField("row", rowNum).WithError(err).Warn("skipping unreadable row")
			result.Skipped++
			continue
		}

		b, err := parseBeneficiary(record)
		if err != nil {
			log.WithField("row", rowNum).WithError(err).Warn("skipping invalid row")
			result.Skipped++
			continue
		}

		created, err := s.store.CreateBeneficiary(ctx, b)
		if err != nil {
			return result, fmt.Errorf("row %d: %w", rowNum, err)
		}
		if !created {
			result.Skipped++
			continue
		}
		result.Inserted++
	}

	log.WithFields(logrus.Fields{"inserted": result.Inserted, "skipped": result.Skipped}).Info("beneficiary import finished")
	return result, nil
}

func parseBeneficiary(record []string) (*models.Beneficiary, error) {
	if len(record) < beneficiaryColumns {
		return nil, fmt.Errorf("expected %d columns, got %d", beneficiaryColumns, len(record))
	}
	for i := range record {
		record[i] = strings.TrimSpace(record[i])
	}

	b := &models.Beneficiary{
		FirstName:    record[1],
		LastName:     record[2],
		Email:        record[3],
		Status:       record[8],
		RegisteredAt: time.Now(),
	}
	if record[0] != "" {
		rut := record[0]
		b.RUT = &rut
	}
	if b.FirstName == "" {
		return nil, errors.New("first name is empty")
	}
	if b.Status == "" {
		b.Status = models.BeneficiaryActive
	}

	if record[4] != "" {
		score, err := strconv.Atoi(record[4])
		if err != nil || score < 0 || score > 100 {
			return nil, fmt.Errorf("invalid socioeconomic score %q", record[4])
		}
		b.SocioeconomicScore = &score
	}
	if record[5] != "" {
		income, err := decimal.NewFromString(record[5])
		if err != nil || income.IsNegative() {
			return nil, fmt.Errorf("invalid household income %q", record[5])
		}
		b.HouseholdIncome = decimal.NewNullDecimal(income)
	}
	if record[6] != "" {
		size, err := strconv.Atoi(record[6])
		if err != nil || size <= 0 {
			return nil, fmt.Errorf("invalid household size %q", record[6])
		}
		b.HouseholdSize = &size
	}
	if record[7] != "" {
		id, err := strconv.ParseUint(record[7], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid municipality id %q", record[7])
		}
		municipalityID := uint(id)
		b.MunicipalityID = &municipalityID
	}
	return b, nil
}

// CreateProject validates and stores a new housing project.
func (s *Service) CreateProject(ctx context.Context, p *models.Project) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: project name is required", ErrInvalidParams)
	}
	if p.AvailableUnits < 0 {
		return fmt.Errorf("%w: available units must be >= 0", ErrInvalidParams)
	}
	if p.Status == "" {
		p.Status = models.ProjectPlanning
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	return s.store.CreateProject(ctx, p)
}
