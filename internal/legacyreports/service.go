// Package legacyreports implements the protocol-based checkout: the buyer
// pays first and the provider assembles the full report asynchronously.
package legacyreports

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/placaexpress/vehicle-report-backend/internal/orders"
	"github.com/placaexpress/vehicle-report-backend/internal/platequery"
	"github.com/placaexpress/vehicle-report-backend/internal/report"
	"github.com/placaexpress/vehicle-report-backend/pkg/asaas"
	"github.com/placaexpress/vehicle-report-backend/pkg/db/models"
	"github.com/placaexpress/vehicle-report-backend/pkg/enums"
	pkgerrors "github.com/placaexpress/vehicle-report-backend/pkg/errors"
	"github.com/placaexpress/vehicle-report-backend/pkg/logger"
	"github.com/placaexpress/vehicle-report-backend/pkg/outbox"
	"github.com/placaexpress/vehicle-report-backend/pkg/outbox/payloads"
	"github.com/placaexpress/vehicle-report-backend/pkg/taxid"
	"github.com/placaexpress/vehicle-report-backend/pkg/vehicledata"
)

const (
	defaultPollBatch = 50
	reportNotFound   = "Relatório não encontrado."
)

// Gateway is the slice of the Asaas client the legacy checkout uses.
type Gateway interface {
	EnsureCustomer(ctx context.Context, params asaas.CustomerParams) (*asaas.Customer, error)
	CreatePixCharge(ctx context.Context, params asaas.PixChargeParams) (*asaas.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (*asaas.Payment, error)
}

// QRFetcher retries the PIX payload fetch with the checkout's bounded policy.
type QRFetcher interface {
	FetchPixQRCode(ctx context.Context, paymentID string) (*asaas.PixQRCode, error)
}

// Provider is the full-report protocol slice of the vehicle-data client.
type Provider interface {
	RequestReport(ctx context.Context, plate string) (string, error)
	ReportStatus(ctx context.Context, protocol string) (*vehicledata.ProtocolResult, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type CreatePaymentInput struct {
	Plate    string
	Customer orders.CustomerInput
}

type CreatePaymentResult struct {
	ReportID     uuid.UUID `json:"reportId"`
	PaymentID    string    `json:"paymentId"`
	PixQRCode    *string   `json:"pixQrCode,omitempty"`
	PixCopyPaste *string   `json:"pixCopyPaste,omitempty"`
	Status       string    `json:"status"`
}

type CheckPaymentInput struct {
	PaymentID string
	ReportID  uuid.UUID
}

type CheckPaymentResult struct {
	Status       string                   `json:"status"`
	IsPaid       bool                     `json:"isPaid"`
	ReportID     uuid.UUID                `json:"reportId"`
	ReportStatus enums.LegacyReportStatus `json:"reportStatus"`
	Report       *report.NormalizedReport `json:"report,omitempty"`
	PixQRCode    *string                  `json:"pixQrCode,omitempty"`
	PixCopyPaste *string                  `json:"pixCopyPaste,omitempty"`
}

type ServiceParams struct {
	Repo        Repository
	Tx          txRunner
	Gateway     Gateway
	QRCodes     QRFetcher
	Provider    Provider
	Outbox      outbox.Emitter
	Logger      *logger.Logger
	PriceCents  int64
	DueDays     int
	Description string
	PollMinAge  time.Duration
	Now         func() time.Time
}

type Service struct {
	repo        Repository
	tx          txRunner
	gateway     Gateway
	qrcodes     QRFetcher
	provider    Provider
	outbox      outbox.Emitter
	logg        *logger.Logger
	price       int64
	dueDays     int
	description string
	pollMinAge  time.Duration
	now         func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Repo == nil:
		return nil, errors.New("legacy report repository required")
	case params.Tx == nil:
		return nil, errors.New("transaction runner required")
	case params.Gateway == nil:
		return nil, errors.New("payment gateway required")
	case params.QRCodes == nil:
		return nil, errors.New("qr code fetcher required")
	case params.Provider == nil:
		return nil, errors.New("vehicle data provider required")
	case params.Outbox == nil:
		return nil, errors.New("outbox emitter required")
	case params.PriceCents <= 0:
		return nil, errors.New("legacy report price must be positive")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	dueDays := params.DueDays
	if dueDays <= 0 {
		dueDays = 3
	}
	return &Service{
		repo:        params.Repo,
		tx:          params.Tx,
		gateway:     params.Gateway,
		qrcodes:     params.QRCodes,
		provider:    params.Provider,
		outbox:      params.Outbox,
		logg:        params.Logger,
		price:       params.PriceCents,
		dueDays:     dueDays,
		description: strings.TrimSpace(params.Description),
		pollMinAge:  params.PollMinAge,
		now:         now,
	}, nil
}

// CreatePayment opens a report request and charges it over PIX.
func (s *Service) CreatePayment(ctx context.Context, input CreatePaymentInput) (*CreatePaymentResult, error) {
	plate, err := platequery.Normalize(input.Plate)
	if err != nil {
		return nil, err
	}
	cpf, ok := taxid.NormalizeCPF(input.Customer.CPF)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTaxID, "CPF inválido.").
			WithDetails(map[string]any{"field": "customerCpf"})
	}
	name := strings.TrimSpace(input.Customer.Name)
	email := strings.ToLower(strings.TrimSpace(input.Customer.Email))
	phone := taxid.Digits(input.Customer.Phone)
	if name == "" || email == "" || phone == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Nome, e-mail e telefone são obrigatórios.")
	}
	if s.logg != nil {
		ctx = s.logg.WithPlate(ctx, plate)
	}

	customer, err := s.gateway.EnsureCustomer(ctx, asaas.CustomerParams{
		Name:        name,
		CPFCNPJ:     cpf,
		Email:       email,
		MobilePhone: phone,
	})
	if err != nil {
		return nil, gatewayError(err)
	}

	vr := &models.VehicleReport{
		Plate:         plate,
		Status:        enums.LegacyReportPendingPayment,
		CustomerName:  name,
		CustomerEmail: email,
		CustomerPhone: phone,
		CustomerCPF:   cpf,
	}
	if err := s.repo.CreateReport(ctx, vr); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store report request")
	}

	dueDate := orders.DueDate(s.now(), s.dueDays)
	charge, err := s.gateway.CreatePixCharge(ctx, asaas.PixChargeParams{
		CustomerID:        customer.ID,
		AmountCents:       s.price,
		DueDate:           dueDate,
		Description:       s.chargeDescription(plate),
		ExternalReference: vr.ID.String(),
	})
	if err != nil {
		return nil, gatewayError(err)
	}

	payment := &models.Payment{
		VehicleReportID:   vr.ID,
		GatewayPaymentID:  charge.ID,
		GatewayCustomerID: customer.ID,
		AmountCents:       s.price,
		Status:            charge.Status.String(),
		DueDate:           dueDate,
	}
	if err := s.repo.CreatePayment(ctx, payment); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store payment")
	}

	result := &CreatePaymentResult{
		ReportID:  vr.ID,
		PaymentID: charge.ID,
		Status:    orders.StatusGenerating,
	}
	if qr, err := s.qrcodes.FetchPixQRCode(ctx, charge.ID); err == nil {
		if err := s.repo.SavePaymentQRCode(ctx, payment.ID, qr.EncodedImage, qr.Payload); err != nil && s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "failed to cache pix qr code")
		}
		result.PixQRCode = &qr.EncodedImage
		result.PixCopyPaste = &qr.Payload
		result.Status = orders.StatusPending
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"report_id":  vr.ID.String(),
			"payment_id": charge.ID,
		}), "legacy report payment created")
	}
	return result, nil
}

// CheckPayment reconciles the charge with the gateway and advances the
// report towards completion.
func (s *Service) CheckPayment(ctx context.Context, input CheckPaymentInput) (*CheckPaymentResult, error) {
	payment, vr, err := s.find(ctx, input)
	if err != nil {
		return nil, err
	}

	status := payment.Status
	if payment.PaidAt == nil {
		charge, err := s.gateway.GetPayment(ctx, payment.GatewayPaymentID)
		if err != nil {
			return nil, gatewayError(err)
		}
		status = charge.Status.String()
		if charge.IsPaid() {
			if _, err := s.applyPaid(ctx, payment, vr, status, outbox.SourcePoll); err != nil {
				return nil, err
			}
			paidAt := s.now()
			payment.PaidAt = &paidAt
		} else if status != payment.Status {
			if err := s.repo.UpdatePaymentStatus(ctx, payment.ID, status); err != nil && s.logg != nil {
				s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "failed to store gateway status")
			}
		}
	}

	result := &CheckPaymentResult{
		Status:   status,
		IsPaid:   payment.PaidAt != nil,
		ReportID: vr.ID,
	}
	if !result.IsPaid {
		result.ReportStatus = vr.Status
		result.PixQRCode = payment.PixQRCode
		result.PixCopyPaste = payment.PixCopyPaste
		return result, nil
	}

	vr, err = s.Advance(ctx, vr)
	if err != nil {
		return nil, err
	}
	result.ReportStatus = vr.Status
	if vr.Status == enums.LegacyReportCompleted {
		full := report.FromProtocol(vr.Plate, vr.ReportData)
		result.Report = &full
	}
	return result, nil
}

// ApplyPaidPayment applies a settled gateway charge pushed by the webhook.
// found is false when the charge does not belong to this flow.
func (s *Service) ApplyPaidPayment(ctx context.Context, gatewayPaymentID, gatewayStatus, source string) (found bool, applied bool, err error) {
	payment, err := s.repo.FindPaymentByGatewayID(ctx, strings.TrimSpace(gatewayPaymentID))
	if err != nil {
		return false, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment")
	}
	if payment == nil {
		return false, false, nil
	}
	vr, err := s.repo.FindReport(ctx, payment.VehicleReportID)
	if err != nil {
		return true, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load report")
	}
	if vr == nil {
		return true, false, pkgerrors.New(pkgerrors.CodeNotFound, reportNotFound)
	}
	applied, err = s.applyPaid(ctx, payment, vr, gatewayStatus, source)
	if err != nil || !applied {
		return true, applied, err
	}
	if _, err := s.Advance(ctx, vr); err != nil && s.logg != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "report request after webhook failed")
	}
	return true, true, nil
}

// Advance moves a paid report one step: request the protocol, or poll it.
// Provider failures leave the report where it was for the next attempt.
func (s *Service) Advance(ctx context.Context, vr *models.VehicleReport) (*models.VehicleReport, error) {
	switch vr.Status {
	case enums.LegacyReportPendingPayment:
		protocol, err := s.provider.RequestReport(ctx, vr.Plate)
		if err != nil {
			s.warn(ctx, vr, "full report request failed", err)
			return vr, nil
		}
		if _, err := s.repo.StartProcessing(ctx, vr.ID, protocol); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store protocol")
		}
		return s.reload(ctx, vr.ID)

	case enums.LegacyReportProcessing:
		if vr.Protocol == nil {
			return vr, nil
		}
		res, err := s.provider.ReportStatus(ctx, *vr.Protocol)
		if err != nil {
			s.warn(ctx, vr, "protocol poll failed", err)
			return vr, nil
		}
		switch {
		case res.Done():
			if err := s.complete(ctx, vr, res); err != nil {
				return nil, err
			}
			return s.reload(ctx, vr.ID)
		case res.Failed():
			msg := strings.TrimSpace(res.Message)
			if msg == "" {
				msg = "provedor não conseguiu gerar o relatório"
			}
			if err := s.repo.Fail(ctx, vr.ID, msg); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store failure")
			}
			return s.reload(ctx, vr.ID)
		}
	}
	return vr, nil
}

// PollProcessing advances every report still waiting on its protocol and
// retries the protocol request of paid reports that never got one. It returns
// how many finished and the collected per-report failures.
func (s *Service) PollProcessing(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultPollBatch
	}
	reports, err := s.repo.ListAdvanceable(ctx, s.now().Add(-s.pollMinAge), limit)
	if err != nil {
		return 0, fmt.Errorf("list advanceable reports: %w", err)
	}
	finished := 0
	var errs error
	for i := range reports {
		next, err := s.Advance(ctx, &reports[i])
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("report %s: %w", reports[i].ID, err))
			continue
		}
		if next.Status.Terminal() {
			finished++
		}
	}
	return finished, errs
}

func (s *Service) applyPaid(ctx context.Context, payment *models.Payment, vr *models.VehicleReport, status, source string) (bool, error) {
	now := s.now()
	won := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		changed, err := s.repo.WithTx(tx).MarkPaymentPaid(ctx, payment.ID, status, now)
		if err != nil || !changed {
			return err
		}
		won = true
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventLegacyReportPaid,
			AggregateType: enums.AggregateVehicleReport,
			AggregateID:   vr.ID,
			Source:        source,
			OccurredAt:    now,
			Data: payloads.LegacyReportPaidEvent{
				ReportID:         vr.ID,
				PaymentID:        payment.ID,
				Plate:            vr.Plate,
				GatewayPaymentID: payment.GatewayPaymentID,
				AmountCents:      payment.AmountCents,
				PaidAt:           now,
				Buyer: payloads.Buyer{
					Name:  vr.CustomerName,
					Email: vr.CustomerEmail,
					Phone: vr.CustomerPhone,
					CPF:   vr.CustomerCPF,
				},
			},
		})
	})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "apply paid payment")
	}
	if won && s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{"report_id": vr.ID.String(), "source": source}), "legacy payment confirmed")
	}
	return won, nil
}

func (s *Service) complete(ctx context.Context, vr *models.VehicleReport, res *vehicledata.ProtocolResult) error {
	now := s.now()
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		changed, err := s.repo.WithTx(tx).Complete(ctx, vr.ID, res.Data, now)
		if err != nil || !changed {
			return err
		}
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventLegacyReportReady,
			AggregateType: enums.AggregateVehicleReport,
			AggregateID:   vr.ID,
			Source:        outbox.SourcePoll,
			OccurredAt:    now,
			Data: payloads.LegacyReportCompletedEvent{
				ReportID:    vr.ID,
				Plate:       vr.Plate,
				Protocol:    res.Protocol,
				CompletedAt: now,
			},
		})
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store completed report")
	}
	return nil
}

func (s *Service) find(ctx context.Context, input CheckPaymentInput) (*models.Payment, *models.VehicleReport, error) {
	var (
		payment *models.Payment
		err     error
	)
	switch {
	case strings.TrimSpace(input.PaymentID) != "":
		payment, err = s.repo.FindPaymentByGatewayID(ctx, strings.TrimSpace(input.PaymentID))
	case input.ReportID != uuid.Nil:
		payment, err = s.repo.FindPaymentByReport(ctx, input.ReportID)
	default:
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "Informe paymentId ou reportId.")
	}
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment")
	}
	if payment == nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "Pagamento não encontrado.")
	}
	vr, err := s.repo.FindReport(ctx, payment.VehicleReportID)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load report")
	}
	if vr == nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, reportNotFound)
	}
	return payment, vr, nil
}

func (s *Service) reload(ctx context.Context, id uuid.UUID) (*models.VehicleReport, error) {
	vr, err := s.repo.FindReport(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload report")
	}
	if vr == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, reportNotFound)
	}
	return vr, nil
}

func (s *Service) chargeDescription(plate string) string {
	if s.description == "" {
		return "Relatório veicular - placa " + plate
	}
	return s.description + " - placa " + plate
}

func (s *Service) warn(ctx context.Context, vr *models.VehicleReport, msg string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"report_id": vr.ID.String(),
		"error":     err.Error(),
	}), msg)
}

func gatewayError(err error) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeProviderUnavailable, err, "Não foi possível gerar a cobrança PIX. Tente novamente.")
}
