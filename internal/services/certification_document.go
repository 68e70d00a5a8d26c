package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"certification-service/internal/config"
	"certification-service/internal/database/minio"
	"certification-service/internal/models"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/phpdave11/gofpdf"
)

const documentGeneratorVer = "gap-certificate-1.0"

// CertificationDocumentService renders alert certification documents as PDF
// and stores them in object storage. The returned hash is the SHA-256 of the
// exact stored bytes, so a downloaded document can be checked against the
// alert row.
type CertificationDocumentService struct {
	storage *minio.MinioClient
	cfg     config.MinioConfig
	now     func() time.Time
}

func NewCertificationDocumentService(storage *minio.MinioClient, cfg config.MinioConfig) *CertificationDocumentService {
	return &CertificationDocumentService{
		storage: storage,
		cfg:     cfg,
		now:     time.Now,
	}
}

// RenderCertificate builds the certification PDF for one alert, validates
// the bytes, uploads them, and returns the object name and content hash.
func (s *CertificationDocumentService) RenderCertificate(ctx context.Context, alert *models.GapAlert, records []models.GapRecord) (string, string, error) {
	generatedAt := s.now().UTC()

	data, err := buildCertificatePDF(alert, records, generatedAt)
	if err != nil {
		return "", "", fmt.Errorf("failed to build certificate pdf: %w", err)
	}

	// A document that does not parse as a PDF never reaches storage.
	if err := api.Validate(bytes.NewReader(data), nil); err != nil {
		return "", "", fmt.Errorf("rendered pdf failed validation: %w", err)
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	objectName := fmt.Sprintf("certifications/%s/%s_%d.pdf", alert.VehicleID, alert.ID, generatedAt.Unix())
	if err := s.storage.UploadBytes(ctx, s.cfg.DocumentBucket, objectName, data, "application/pdf"); err != nil {
		return "", "", fmt.Errorf("failed to upload certificate: %w", err)
	}

	slog.Info("Certification document stored",
		"alert_id", alert.ID,
		"object", objectName,
		"bytes", len(data))

	return objectName, hash, nil
}

func buildCertificatePDF(alert *models.GapAlert, records []models.GapRecord, generatedAt time.Time) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(14, 14, 14)
	pdf.SetAutoPageBreak(true, 14)
	pdf.SetTitle("Telemetry Gap Certification", false)

	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 9, "Telemetry Gap Certification Report", "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(60, 60, 60)
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated at: %s", generatedAt.Format(time.RFC3339)), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Generator: %s", documentGeneratorVer), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	sectionTitle(pdf, "1. Alert")
	kv(pdf, "Alert ID", alert.ID.String())
	kv(pdf, "Vehicle ID", alert.VehicleID.String())
	kv(pdf, "Type", string(alert.AlertType))
	kv(pdf, "Severity", string(alert.Severity))
	kv(pdf, "Status", string(alert.Status))
	kv(pdf, "Detected At", alert.DetectedAt.UTC().Format(time.RFC3339))
	kv(pdf, "Contract Relevant", fmt.Sprintf("%v", alert.ContractRelevant))
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(30, 30, 30)
	pdf.MultiCell(0, 5, "Description: "+alert.Description, "", "L", false)
	if alert.ResolutionNotes != nil {
		pdf.MultiCell(0, 5, "Resolution: "+*alert.ResolutionNotes, "", "L", false)
	}
	pdf.Ln(2)

	sectionTitle(pdf, "2. Window Metrics")
	kv(pdf, "Window", fmt.Sprintf("%s - %s",
		time.Unix(alert.Metrics.WindowStart, 0).UTC().Format(time.RFC3339),
		time.Unix(alert.Metrics.WindowEnd, 0).UTC().Format(time.RFC3339)))
	kv(pdf, "Gap Hours", fmt.Sprintf("%d", alert.Metrics.GapHours))
	kv(pdf, "Gap Percent", fmt.Sprintf("%.1f%%", alert.Metrics.GapPercent))
	kv(pdf, "Average Confidence", fmt.Sprintf("%.1f%%", alert.Metrics.AverageConfidence))
	kv(pdf, "Outage-Matched Gaps", fmt.Sprintf("%d", alert.Metrics.OutageMatchedGaps))
	if alert.Metrics.LowestConfidence != nil {
		kv(pdf, "Lowest Confidence", fmt.Sprintf("%.1f%%", *alert.Metrics.LowestConfidence))
	}
	if alert.Metrics.LongestRunHours != nil {
		kv(pdf, "Longest Gap Run", fmt.Sprintf("%d hours", *alert.Metrics.LongestRunHours))
	}
	if alert.Metrics.ProfiledGapCount != nil {
		kv(pdf, "Profiled-Window Gaps", fmt.Sprintf("%d", *alert.Metrics.ProfiledGapCount))
	}
	if alert.Metrics.MonthlyDowntimePercent != nil {
		kv(pdf, "Monthly Downtime", fmt.Sprintf("%.1f%%", *alert.Metrics.MonthlyDowntimePercent))
	}
	pdf.Ln(2)

	sectionTitle(pdf, "3. Certified Gap Records")
	if len(records) == 0 {
		pdf.SetFont("Helvetica", "", 10)
		pdf.SetTextColor(90, 90, 90)
		pdf.MultiCell(0, 5, "(no gap records in window)", "", "L", false)
	} else {
		for i, record := range records {
			pdf.SetFont("Helvetica", "B", 11)
			pdf.SetTextColor(20, 20, 20)
			pdf.CellFormat(0, 6, fmt.Sprintf("Gap #%d", i+1), "", 1, "L", false, 0, "")
			pdf.SetFont("Helvetica", "", 10)
			pdf.SetTextColor(30, 30, 30)
			kv(pdf, "Hour", time.Unix(record.GapTimestamp, 0).UTC().Format(time.RFC3339))
			kv(pdf, "Confidence", fmt.Sprintf("%.2f%%", record.Confidence))
			kv(pdf, "Integrity Hash", record.IntegrityHash)
			pdf.MultiCell(0, 4.5, "Justification: "+record.Justification, "", "L", false)
			pdf.Ln(1)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func sectionTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetTextColor(20, 20, 20)
	pdf.CellFormat(0, 7, title, "", 1, "L", false, 0, "")
	pdf.SetDrawColor(200, 200, 200)
	x, y := pdf.GetXY()
	pdf.Line(x, y, 196, y)
	pdf.Ln(2)
}

func kv(pdf *gofpdf.Fpdf, key, value string) {
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(30, 30, 30)
	pdf.CellFormat(48, 5, key+":", "", 0, "L", false, 0, "")
	pdf.MultiCell(0, 5, value, "", "L", false)
}
