//go:build integration

package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/adverant/nexus/mrz-worker/internal/mrz"
)

type PostgresSuite struct {
	suite.Suite
	container *postgres.PostgresContainer
	client    *PostgresClient
}

func TestPostgresSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresSuite))
}

func (s *PostgresSuite) SetupSuite() {
	ctx := context.Background()

	// recover from panics inside testcontainers when no Docker socket exists
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("testcontainers panicked: %v", r)
			}
		}()
		_, err = testcontainers.NewDockerClientWithOpts(ctx)
		return
	}()
	if err != nil {
		s.T().Skipf("Docker not available: %v", err)
	}

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("mrz_test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		postgres.BasicWaitStrategies(),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	s.Require().NoError(err)

	s.client, err = NewPostgresClient(ctx, connStr)
	s.Require().NoError(err)
}

func (s *PostgresSuite) TearDownSuite() {
	if s.client != nil {
		s.client.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(context.Background())
	}
}

func (s *PostgresSuite) SetupTest() {
	_, err := s.client.db.ExecContext(context.Background(), `TRUNCATE mrz.scan_results`)
	s.Require().NoError(err)
}

func (s *PostgresSuite) TestSaveAndGetMatch() {
	ctx := context.Background()
	record := mrz.NormalizeFields(mrz.RawFields{DocumentNumber: "L898902C<", DateOfBirth: "690806", DateOfExpiry: "940623"})
	record.Format = mrz.FormatA

	id, err := s.client.SaveOutcome(ctx, &ScanOutcome{
		FrameID:   "frame-1",
		SessionID: "session-1",
		Outcome:   OutcomeMatch,
		Format:    mrz.FormatA.String(),
		Record:    &record,
		ElapsedMs: 420,
		Width:     1280,
		Height:    720,
		Rotation:  90,
	})
	s.Require().NoError(err)
	s.NotEmpty(id)

	got, err := s.client.GetOutcome(ctx, "frame-1")
	s.Require().NoError(err)
	s.Equal(id, got.ID)
	s.Equal("session-1", got.SessionID)
	s.Equal(OutcomeMatch, got.Outcome)
	s.Equal("old-passport", got.Format)
	s.Require().NotNil(got.Record)
	s.Equal(record, *got.Record)
	s.Equal(int64(420), got.ElapsedMs)
	s.Equal(90, got.Rotation)

	matches, err := s.client.SessionMatches(ctx, "session-1")
	s.Require().NoError(err)
	s.Len(matches, 1)
}

func (s *PostgresSuite) TestSaveErrorAndNoMatch() {
	ctx := context.Background()

	_, err := s.client.SaveOutcome(ctx, &ScanOutcome{
		FrameID:      "frame-err",
		Outcome:      OutcomeError,
		ErrorCode:    "RECOGNITION_TIMEOUT",
		ErrorMessage: "recognition exceeded 10s",
		ErrorDetails: map[string]interface{}{"timeout_ms": float64(10000)},
		ElapsedMs:    10000,
	})
	s.Require().NoError(err)

	_, err = s.client.SaveOutcome(ctx, &ScanOutcome{FrameID: "frame-none", Outcome: OutcomeNoMatch, ElapsedMs: 80})
	s.Require().NoError(err)

	got, err := s.client.GetOutcome(ctx, "frame-err")
	s.Require().NoError(err)
	s.Nil(got.Record)
	s.Equal("RECOGNITION_TIMEOUT", got.ErrorCode)
	s.Equal(float64(10000), got.ErrorDetails["timeout_ms"])

	counts, err := s.client.CountByOutcome(ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), counts[OutcomeError])
	s.Equal(int64(1), counts[OutcomeNoMatch])
	s.Equal(int64(0), counts[OutcomeMatch])

	outcomes, err := s.client.GetOutcomes(ctx, []string{"frame-err", "frame-none", "frame-unknown"})
	s.Require().NoError(err)
	s.Len(outcomes, 2)
}

func (s *PostgresSuite) TestSaveReplacesOutcomeForSameFrame() {
	ctx := context.Background()

	_, err := s.client.SaveOutcome(ctx, &ScanOutcome{FrameID: "job-1", Outcome: OutcomeError, ErrorCode: "RECOGNITION_FAILED", ElapsedMs: 5})
	s.Require().NoError(err)
	_, err = s.client.SaveOutcome(ctx, &ScanOutcome{FrameID: "job-1", Outcome: OutcomeNoMatch, ElapsedMs: 7})
	s.Require().NoError(err)

	got, err := s.client.GetOutcome(ctx, "job-1")
	s.Require().NoError(err)
	s.Equal(OutcomeNoMatch, got.Outcome)
	s.Empty(got.ErrorCode)
}

func (s *PostgresSuite) TestGetUnknownFrame() {
	_, err := s.client.GetOutcome(context.Background(), "missing")
	s.True(errors.Is(err, ErrNotFound))
}

func (s *PostgresSuite) TestSaveValidatesInput() {
	ctx := context.Background()
	_, err := s.client.SaveOutcome(ctx, &ScanOutcome{Outcome: OutcomeMatch})
	s.ErrorContains(err, "frame ID is required")

	_, err = s.client.SaveOutcome(ctx, &ScanOutcome{FrameID: "f", Outcome: "maybe"})
	s.ErrorContains(err, "unknown outcome")
}
