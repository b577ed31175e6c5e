package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"greencredits/internal/model"
	"greencredits/internal/stats"
	"greencredits/internal/timestamp"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

// ErrExportBucketNotConfigured is returned by Upload when EXPORT_S3_BUCKET is empty.
var ErrExportBucketNotConfigured = errors.New("export bucket is not configured")

const (
	sheetSummary = "Summary"
	sheetUsers   = "Users"
	sheetSeries  = "Series"

	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ObjectUploader is the subset of *s3.Client used for exports.
type ObjectUploader interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ExportService renders the current snapshot as an XLSX workbook.
type ExportService interface {
	WriteWorkbook(w io.Writer, r model.Range) error
	Upload(ctx context.Context, r model.Range) (string, error)
}

type exportService struct {
	dashboard DashboardService
	s3Client  ObjectUploader
	bucket    string
	loc       *time.Location
	logger    zerolog.Logger
}

// NewExportService creates a new ExportService. s3Client may be nil when
// uploads are disabled.
func NewExportService(dashboard DashboardService, s3Client ObjectUploader, bucket string, loc *time.Location, logger zerolog.Logger) ExportService {
	if loc == nil {
		loc = time.UTC
	}
	return &exportService{
		dashboard: dashboard,
		s3Client:  s3Client,
		bucket:    bucket,
		loc:       loc,
		logger:    logger,
	}
}

// WriteWorkbook writes a workbook with Summary, Users and Series sheets. The
// Series sheet uses range r.
func (s *exportService) WriteWorkbook(w io.Writer, r model.Range) error {
	snap, err := s.dashboard.Current()
	if err != nil {
		return err
	}
	points, err := s.dashboard.Series(snap, r)
	if err != nil {
		return err
	}
	rows, err := s.dashboard.Rows(snap, stats.ViewParams{Sort: stats.DefaultSortState()})
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return fmt.Errorf("renaming sheet: %w", err)
	}
	if err := s.writeSummary(f, snap); err != nil {
		return err
	}
	if err := s.writeUsers(f, rows); err != nil {
		return err
	}
	if err := writeSeries(f, r, points); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func (s *exportService) writeSummary(f *excelize.File, snap *Snapshot) error {
	sum := snap.Result.Summary
	data := [][]any{
		{"Metric", "Value"},
		{"Generation", snap.Generation},
		{"Loaded At", snap.LoadedAt.In(s.loc).Format("1/2/2006 3:04:05 PM")},
		{"Total Users", sum.TotalUsers},
		{"Total Trips", sum.TotalTrips},
		{"Total Carbon Credits", stats.Round2(sum.TotalCarbonCredits)},
		{"Average Credits per User", stats.Round2(sum.AverageCarbonCreditsPerUser)},
		{"Average Trips per User", stats.Round2(sum.AverageTripsPerUser)},
		{"Most Popular Transport Mode", stats.DisplayMode(sum.MostPopularTransportMode)},
		{"Failed Users", snap.FailedUsers},
	}
	return writeRows(f, sheetSummary, data)
}

func (s *exportService) writeUsers(f *excelize.File, rows []model.UserRow) error {
	if _, err := f.NewSheet(sheetUsers); err != nil {
		return fmt.Errorf("creating %s sheet: %w", sheetUsers, err)
	}
	data := make([][]any, 0, len(rows)+1)
	data = append(data, []any{"Email", "Home", "Last Active", "Total Trips", "Carbon Credits", "Total Distance", "Most Used Mode", "Error"})
	for _, row := range rows {
		data = append(data, []any{
			row.Email,
			stats.DisplayHome(row.Home),
			timestamp.Display(row.LastActive, s.loc),
			row.TotalTrips,
			stats.Round2(row.CarbonCredits),
			stats.Round2(row.TotalDistance),
			stats.DisplayMode(row.MostUsedMode),
			row.Error,
		})
	}
	return writeRows(f, sheetUsers, data)
}

func writeSeries(f *excelize.File, r model.Range, points []model.SeriesPoint) error {
	if _, err := f.NewSheet(sheetSeries); err != nil {
		return fmt.Errorf("creating %s sheet: %w", sheetSeries, err)
	}
	data := make([][]any, 0, len(points)+1)
	data = append(data, []any{"Label (" + string(r) + ")", "Bucket Start", "Carbon Credits", "Trip Count"})
	for _, p := range points {
		data = append(data, []any{
			p.Label,
			p.BucketStart.Format(time.RFC3339),
			stats.Round2(p.CarbonCredits),
			p.TripCount,
		})
	}
	return writeRows(f, sheetSeries, data)
}

func writeRows(f *excelize.File, sheet string, data [][]any) error {
	for i, row := range data {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("writing %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

// Upload writes the workbook to the export bucket and returns its object key.
func (s *exportService) Upload(ctx context.Context, r model.Range) (string, error) {
	if s.bucket == "" || s.s3Client == nil {
		return "", ErrExportBucketNotConfigured
	}
	snap, err := s.dashboard.Current()
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := s.WriteWorkbook(&buf, r); err != nil {
		return "", err
	}

	key := fmt.Sprintf("exports/dashboard-g%d-%s-%s.xlsx", snap.Generation, r, snap.LoadedAt.UTC().Format("20060102T150405Z"))
	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(buf.Bytes()),
		ContentType:   aws.String(xlsxContentType),
		ContentLength: aws.Int64(int64(buf.Len())),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload export to S3: %w", err)
	}
	s.logger.Info().Str("bucket", s.bucket).Str("key", key).Msg("Dashboard export uploaded")
	return key, nil
}
