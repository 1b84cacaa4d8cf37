package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/placaexpress/vehicle-report-backend/internal/customers"
	"github.com/placaexpress/vehicle-report-backend/internal/platequery"
	"github.com/placaexpress/vehicle-report-backend/pkg/asaas"
	"github.com/placaexpress/vehicle-report-backend/pkg/db/models"
	"github.com/placaexpress/vehicle-report-backend/pkg/enums"
	pkgerrors "github.com/placaexpress/vehicle-report-backend/pkg/errors"
	"github.com/placaexpress/vehicle-report-backend/pkg/logger"
	"github.com/placaexpress/vehicle-report-backend/pkg/outbox"
	"github.com/placaexpress/vehicle-report-backend/pkg/outbox/payloads"
	"github.com/placaexpress/vehicle-report-backend/pkg/taxid"
)

const (
	defaultQRAttempts   = 10
	defaultQRDelay      = 2 * time.Second
	maxQRDelay          = 5 * time.Second
	defaultAsyncTimeout = 2 * time.Minute
	minDueDays          = 1
	maxDueDays          = 7

	gatewayFailureMsg = "Não foi possível gerar a cobrança PIX. Tente novamente."
	orderNotFoundMsg  = "Pedido não encontrado."
)

type ServiceParams struct {
	Repo         Repository
	PlateQueries platequery.Repository
	Tx           txRunner
	Gateway      Gateway
	Outbox       outbox.Emitter
	Recorder     SaleRecorder
	Enricher     Enricher
	Logger       *logger.Logger
	PriceCents   int64
	DueDays      int
	Description  string
	QRAttempts   int
	QRDelay      time.Duration
	AsyncEnrich  bool
	AsyncTimeout time.Duration
	Now          func() time.Time
	Sleep        func(ctx context.Context, d time.Duration) error
}

// Service orchestrates the PIX checkout of a plate report.
type Service struct {
	repo         Repository
	plates       platequery.Repository
	tx           txRunner
	gateway      Gateway
	outbox       outbox.Emitter
	recorder     SaleRecorder
	enricher     Enricher
	logg         *logger.Logger
	price        int64
	dueDays      int
	description  string
	qrAttempts   int
	qrDelay      time.Duration
	asyncEnrich  bool
	asyncTimeout time.Duration
	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration) error
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Repo == nil:
		return nil, errors.New("orders repository required")
	case params.PlateQueries == nil:
		return nil, errors.New("plate query repository required")
	case params.Tx == nil:
		return nil, errors.New("transaction runner required")
	case params.Gateway == nil:
		return nil, errors.New("payment gateway required")
	case params.Outbox == nil:
		return nil, errors.New("outbox emitter required")
	case params.PriceCents <= 0:
		return nil, errors.New("report price must be positive")
	}

	s := &Service{
		repo:         params.Repo,
		plates:       params.PlateQueries,
		tx:           params.Tx,
		gateway:      params.Gateway,
		outbox:       params.Outbox,
		recorder:     params.Recorder,
		enricher:     params.Enricher,
		logg:         params.Logger,
		price:        params.PriceCents,
		dueDays:      clampDueDays(params.DueDays),
		description:  strings.TrimSpace(params.Description),
		qrAttempts:   params.QRAttempts,
		qrDelay:      params.QRDelay,
		asyncEnrich:  params.AsyncEnrich,
		asyncTimeout: params.AsyncTimeout,
		now:          params.Now,
		sleep:        params.Sleep,
	}
	if s.qrAttempts <= 0 {
		s.qrAttempts = defaultQRAttempts
	}
	if s.qrDelay <= 0 {
		s.qrDelay = defaultQRDelay
	}
	if s.qrDelay > maxQRDelay {
		s.qrDelay = maxQRDelay
	}
	if s.asyncTimeout <= 0 {
		s.asyncTimeout = defaultAsyncTimeout
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.sleep == nil {
		s.sleep = sleepCtx
	}
	return s, nil
}

// CreateOrder charges the report price over PIX for a previewed plate.
func (s *Service) CreateOrder(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error) {
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
	if input.PlateQueryID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plateQueryId é obrigatório.")
	}

	pq, err := s.plates.FindByID(ctx, input.PlateQueryID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load plate query")
	}
	if pq == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "Consulta não encontrada.")
	}
	if s.logg != nil {
		ctx = s.logg.WithFields(ctx, map[string]any{
			"plate_query_id": pq.ID.String(),
			"plate":          logger.MaskPlate(pq.Plate),
		})
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

	now := s.now()
	dueDate := DueDate(now, s.dueDays)
	charge, err := s.gateway.CreatePixCharge(ctx, asaas.PixChargeParams{
		CustomerID:        customer.ID,
		AmountCents:       s.price,
		DueDate:           dueDate,
		Description:       s.chargeDescription(pq.Plate),
		ExternalReference: pq.ID.String(),
	})
	if err != nil {
		return nil, gatewayError(err)
	}

	token, err := NewAccessToken()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate access token")
	}

	order := &models.Order{
		PlateQueryID:           pq.ID,
		GatewayPaymentID:       charge.ID,
		GatewayCustomerID:      customer.ID,
		AmountCents:            s.price,
		ProviderCostTotalCents: pq.CostCents,
		PaymentStatus:          enums.OrderPaymentPending,
		PublicAccessToken:      token,
		DueDate:                dueDate,
		CustomerName:           name,
		CustomerEmail:          email,
		CustomerPhone:          phone,
		CustomerCPF:            cpf,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return err
		}
		_, err := s.plates.WithTx(tx).Advance(ctx, pq.ID, enums.PlateQueryPaidPending)
		return err
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store order")
	}
	if s.logg != nil {
		ctx = s.logg.WithOrderID(ctx, order.ID.String())
		s.logg.Info(s.logg.WithField(ctx, "payment_id", charge.ID), "pix order created")
	}

	result := &CreateOrderResult{
		OrderID:           order.ID,
		PaymentID:         charge.ID,
		PublicAccessToken: token,
		Status:            StatusGenerating,
	}
	if qr, err := s.FetchPixQRCode(ctx, charge.ID); err == nil {
		s.cacheQRCode(ctx, order.ID, qr)
		result.PixQRCode = &qr.EncodedImage
		result.PixCopyPaste = &qr.Payload
		result.Status = StatusPending
	} else if s.logg != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "pix qr code not ready, returning generating")
	}

	s.recordSale(ctx, customers.Sale{
		Name:              name,
		Email:             email,
		Phone:             phone,
		CPF:               cpf,
		Plate:             pq.Plate,
		AmountCents:       s.price,
		OrderID:           order.ID,
		GatewayPaymentID:  charge.ID,
		GatewayCustomerID: customer.ID,
		Attribution:       input.Attribution,
	})
	return result, nil
}

// FetchPixQRCode asks the gateway for the PIX payload until it is ready or
// the attempts run out. The last gateway error is returned on exhaustion.
func (s *Service) FetchPixQRCode(ctx context.Context, paymentID string) (*asaas.PixQRCode, error) {
	var lastErr error
	for attempt := 1; attempt <= s.qrAttempts; attempt++ {
		qr, err := s.gateway.GetPixQRCode(ctx, paymentID)
		if err == nil {
			return qr, nil
		}
		lastErr = err
		if attempt == s.qrAttempts {
			break
		}
		if err := s.sleep(ctx, s.qrDelay); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// PollStatus reconciles an order with the gateway and applies the paid
// transition when the charge settled.
func (s *Service) PollStatus(ctx context.Context, input PollInput) (*PollResult, error) {
	order, err := s.findForPoll(ctx, input)
	if err != nil {
		return nil, err
	}
	result := &PollResult{
		OrderID:           order.ID,
		PublicAccessToken: order.PublicAccessToken,
	}
	if order.IsPaid() {
		result.Status = enums.GatewayConfirmed.String()
		result.IsPaid = true
		return result, nil
	}

	payment, err := s.gateway.GetPayment(ctx, order.GatewayPaymentID)
	if err != nil {
		return nil, gatewayError(err)
	}
	result.Status = payment.Status.String()
	if payment.IsPaid() {
		if _, err := s.ApplyPaid(ctx, order.ID, outbox.SourcePoll); err != nil {
			return nil, err
		}
		result.IsPaid = true
		return result, nil
	}

	if order.HasQRCode() {
		result.PixQRCode = order.PixQRCode
		result.PixCopyPaste = order.PixCopyPaste
		return result, nil
	}
	if qr, err := s.gateway.GetPixQRCode(ctx, order.GatewayPaymentID); err == nil {
		s.cacheQRCode(ctx, order.ID, qr)
		result.PixQRCode = &qr.EncodedImage
		result.PixCopyPaste = &qr.Payload
	}
	return result, nil
}

// ApplyPaid is the single paid transition of an order. Only the call that
// flips the row stamps paid_at, confirms the plate query, queues order.paid
// and starts enrichment; it reports true. Repeats are no-ops.
func (s *Service) ApplyPaid(ctx context.Context, orderID uuid.UUID, source string) (bool, error) {
	now := s.now()
	attribution := s.attribution(ctx, orderID)

	won := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		changed, err := repo.MarkPaid(ctx, orderID, now)
		if err != nil || !changed {
			return err
		}
		won = true

		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return fmt.Errorf("order %s vanished after paid update", orderID)
		}
		plates := s.plates.WithTx(tx)
		if _, err := plates.Advance(ctx, order.PlateQueryID, enums.PlateQueryPaidConfirmed); err != nil {
			return err
		}
		pq, err := plates.FindByID(ctx, order.PlateQueryID)
		if err != nil {
			return err
		}
		plate := ""
		if pq != nil {
			plate = pq.Plate
		}

		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Source:        source,
			OccurredAt:    now,
			Data: payloads.OrderPaidEvent{
				OrderID:           order.ID,
				PlateQueryID:      order.PlateQueryID,
				Plate:             plate,
				GatewayPaymentID:  order.GatewayPaymentID,
				AmountCents:       order.AmountCents,
				ProviderCostCents: order.ProviderCostTotalCents,
				PaidAt:            now,
				Buyer: payloads.Buyer{
					Name:  order.CustomerName,
					Email: order.CustomerEmail,
					Phone: order.CustomerPhone,
					CPF:   order.CustomerCPF,
				},
				Attribution: attribution,
			},
		})
	})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "apply paid order")
	}
	if !won {
		return false, nil
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"order_id": orderID.String(),
			"source":   source,
		}), "order paid")
	}
	s.triggerEnrichment(ctx, orderID)
	return true, nil
}

// OrderForPayment returns the order behind a gateway charge, or nil.
func (s *Service) OrderForPayment(ctx context.Context, paymentID string) (*models.Order, error) {
	order, err := s.repo.FindByPaymentID(ctx, strings.TrimSpace(paymentID))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return order, nil
}

func (s *Service) findForPoll(ctx context.Context, input PollInput) (*models.Order, error) {
	var (
		order *models.Order
		err   error
	)
	switch {
	case strings.TrimSpace(input.PaymentID) != "":
		order, err = s.repo.FindByPaymentID(ctx, strings.TrimSpace(input.PaymentID))
	case input.OrderID != uuid.Nil:
		order, err = s.repo.FindByID(ctx, input.OrderID)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Informe paymentId ou orderId.")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, orderNotFoundMsg)
	}
	return order, nil
}

func (s *Service) triggerEnrichment(ctx context.Context, orderID uuid.UUID) {
	if s.enricher == nil || !s.asyncEnrich {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.asyncTimeout)
		defer cancel()
		if err := s.enricher.EnrichOrder(ctx, orderID); err != nil && s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "background enrichment failed")
		}
	}()
}

func (s *Service) cacheQRCode(ctx context.Context, orderID uuid.UUID, qr *asaas.PixQRCode) {
	if err := s.repo.SaveQRCode(ctx, orderID, qr.EncodedImage, qr.Payload); err != nil && s.logg != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "failed to cache pix qr code")
	}
}

func (s *Service) recordSale(ctx context.Context, sale customers.Sale) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordSale(ctx, sale); err != nil && s.logg != nil {
		s.logg.Error(ctx, "failed to record sale in crm", err)
	}
}

func (s *Service) attribution(ctx context.Context, orderID uuid.UUID) payloads.Attribution {
	if s.recorder == nil {
		return payloads.Attribution{}
	}
	attribution, err := s.recorder.AttributionFor(ctx, orderID)
	if err != nil && s.logg != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "attribution lookup failed")
	}
	return attribution
}

func (s *Service) chargeDescription(plate string) string {
	if s.description == "" {
		return "Relatório veicular - placa " + plate
	}
	return s.description + " - placa " + plate
}

func gatewayError(err error) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeProviderUnavailable, err, gatewayFailureMsg)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
