package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/staffhive/ms-go-payouts/app/entity"
	"github.com/staffhive/ms-go-payouts/app/metrics"
	"github.com/staffhive/ms-go-payouts/app/notifier"
	"github.com/staffhive/ms-go-payouts/app/profile"
	"github.com/staffhive/ms-go-payouts/app/rail"
	"github.com/staffhive/ms-go-payouts/app/repository"
	"github.com/staffhive/ms-go-payouts/config"
)

type fakePaymentRepo struct {
	payments  map[uint64]*entity.Payment
	nextID    uint64
	loseClose bool
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{payments: map[uint64]*entity.Payment{}, nextID: 1}
}

func (r *fakePaymentRepo) UpsertByCheckoutSession(_ context.Context, payment *entity.Payment) error {
	for _, item := range r.payments {
		if item.CheckoutSessionID == payment.CheckoutSessionID {
			item.Status = payment.Status
			item.PaymentIntentRef = payment.PaymentIntentRef
			item.UpdatedAt = payment.UpdatedAt
			payment.ID = item.ID
			return nil
		}
	}
	id := r.nextID
	r.nextID++
	copyItem := *payment
	copyItem.ID = id
	r.payments[id] = &copyItem
	payment.ID = id
	return nil
}

func (r *fakePaymentRepo) FindByID(_ context.Context, id uint64) (*entity.Payment, error) {
	item, ok := r.payments[id]
	if !ok {
		return nil, nil
	}
	copyItem := *item
	return &copyItem, nil
}

func (r *fakePaymentRepo) UpdateStatus(_ context.Context, id uint64, status string, now time.Time) error {
	item, ok := r.payments[id]
	if !ok {
		return repository.ErrPaymentNotFound
	}
	item.Status = status
	item.UpdatedAt = now
	return nil
}

func (r *fakePaymentRepo) MarkDistributed(_ context.Context, id uint64, now time.Time) error {
	item, ok := r.payments[id]
	if !ok {
		return repository.ErrPaymentNotFound
	}
	item.Status = entity.PaymentStatusDistributed
	item.DistributedAt = &now
	item.UpdatedAt = now
	return nil
}

func (r *fakePaymentRepo) CloseRelease(_ context.Context, id uint64, status string, releasedAt time.Time, distributedAt *time.Time) (bool, error) {
	item, ok := r.payments[id]
	if !ok {
		return false, repository.ErrPaymentNotFound
	}
	if r.loseClose || item.ReleasedAt != nil {
		return false, nil
	}
	item.Status = status
	item.ReleasedAt = &releasedAt
	item.DistributedAt = distributedAt
	item.UpdatedAt = releasedAt
	return true, nil
}

type fakeSplitRepo struct {
	splits map[uint64]*entity.FinanceSplit
	nextID uint64
}

func newFakeSplitRepo() *fakeSplitRepo {
	return &fakeSplitRepo{splits: map[uint64]*entity.FinanceSplit{}, nextID: 1}
}

func (r *fakeSplitRepo) Create(_ context.Context, split *entity.FinanceSplit) error {
	for _, item := range r.splits {
		if item.PaymentID == split.PaymentID {
			return repository.ErrFinanceSplitAlreadyExists
		}
	}
	id := r.nextID
	r.nextID++
	copyItem := *split
	copyItem.ID = id
	r.splits[id] = &copyItem
	split.ID = id
	return nil
}

func (r *fakeSplitRepo) FindByPaymentID(_ context.Context, paymentID uint64) (*entity.FinanceSplit, error) {
	for _, item := range r.splits {
		if item.PaymentID == paymentID {
			copyItem := *item
			return &copyItem, nil
		}
	}
	return nil, nil
}

func (r *fakeSplitRepo) UpdateStatus(_ context.Context, id uint64, status string, now time.Time) error {
	item, ok := r.splits[id]
	if !ok {
		return repository.ErrFinanceSplitNotFound
	}
	item.Status = status
	item.UpdatedAt = now
	return nil
}

type fakeTransferRepo struct {
	records   map[uint64]*entity.TransferRecord
	nextID    uint64
	createErr error
}

func newFakeTransferRepo() *fakeTransferRepo {
	return &fakeTransferRepo{records: map[uint64]*entity.TransferRecord{}, nextID: 1}
}

func (r *fakeTransferRepo) Create(_ context.Context, record *entity.TransferRecord) error {
	if r.createErr != nil {
		return r.createErr
	}
	for _, item := range r.records {
		if item.PaymentID == record.PaymentID && item.DestinationProfileID == record.DestinationProfileID && item.Type == record.Type {
			return repository.ErrTransferRecordAlreadyExists
		}
	}
	id := r.nextID
	r.nextID++
	copyItem := *record
	copyItem.ID = id
	r.records[id] = &copyItem
	record.ID = id
	return nil
}

func (r *fakeTransferRepo) FindByPaymentAndDestination(_ context.Context, paymentID uint64, destinationProfileID string, transferType string) (*entity.TransferRecord, error) {
	for _, item := range r.records {
		if item.PaymentID == paymentID && item.DestinationProfileID == destinationProfileID && item.Type == transferType {
			copyItem := *item
			return &copyItem, nil
		}
	}
	return nil, nil
}

func (r *fakeTransferRepo) ListByPaymentID(_ context.Context, paymentID uint64) ([]*entity.TransferRecord, error) {
	items := make([]*entity.TransferRecord, 0)
	for id := uint64(1); id < r.nextID; id++ {
		item, ok := r.records[id]
		if !ok || item.PaymentID != paymentID {
			continue
		}
		copyItem := *item
		items = append(items, &copyItem)
	}
	return items, nil
}

func (r *fakeTransferRepo) UpdateResult(_ context.Context, id uint64, status string, externalTransferID *string, errorMessage *string, now time.Time) error {
	item, ok := r.records[id]
	if !ok {
		return repository.ErrTransferRecordNotFound
	}
	item.Status = status
	item.ExternalTransferID = externalTransferID
	item.ErrorMessage = errorMessage
	item.UpdatedAt = now
	return nil
}

type fakeDisputeRepo struct {
	disputes map[uint64]*entity.Dispute
	nextID   uint64
}

func newFakeDisputeRepo() *fakeDisputeRepo {
	return &fakeDisputeRepo{disputes: map[uint64]*entity.Dispute{}, nextID: 1}
}

func (r *fakeDisputeRepo) Create(_ context.Context, dispute *entity.Dispute) error {
	id := r.nextID
	r.nextID++
	copyItem := *dispute
	copyItem.ID = id
	r.disputes[id] = &copyItem
	dispute.ID = id
	return nil
}

func (r *fakeDisputeRepo) FindByID(_ context.Context, id uint64) (*entity.Dispute, error) {
	item, ok := r.disputes[id]
	if !ok {
		return nil, nil
	}
	copyItem := *item
	return &copyItem, nil
}

func (r *fakeDisputeRepo) FindOpenByPaymentID(_ context.Context, paymentID uint64) (*entity.Dispute, error) {
	for _, item := range r.disputes {
		if item.PaymentID == paymentID && item.Status == entity.DisputeStatusOpen {
			copyItem := *item
			return &copyItem, nil
		}
	}
	return nil, nil
}

func (r *fakeDisputeRepo) ListByPaymentID(_ context.Context, paymentID uint64) ([]*entity.Dispute, error) {
	items := make([]*entity.Dispute, 0)
	for id := uint64(1); id < r.nextID; id++ {
		item, ok := r.disputes[id]
		if !ok || item.PaymentID != paymentID {
			continue
		}
		copyItem := *item
		items = append(items, &copyItem)
	}
	return items, nil
}

func (r *fakeDisputeRepo) UpdateStatus(_ context.Context, id uint64, status string, resolvedAt *time.Time) error {
	item, ok := r.disputes[id]
	if !ok {
		return repository.ErrDisputeNotFound
	}
	item.Status = status
	item.ResolvedAt = resolvedAt
	return nil
}

type fakeSelector struct {
	candidates []*repository.ReleaseCandidate
	err        error
}

func (s *fakeSelector) SelectDueForRelease(_ context.Context, _ int32) ([]*repository.ReleaseCandidate, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.candidates, nil
}

type fakeProfileStore struct {
	profiles map[string]*profile.PayoutProfile
	errs     map[string]error
}

func newFakeProfileStore() *fakeProfileStore {
	return &fakeProfileStore{profiles: map[string]*profile.PayoutProfile{}, errs: map[string]error{}}
}

func (s *fakeProfileStore) GetPayoutProfile(_ context.Context, profileID string) (*profile.PayoutProfile, error) {
	if err, ok := s.errs[profileID]; ok {
		return nil, err
	}
	item, ok := s.profiles[profileID]
	if !ok {
		return &profile.PayoutProfile{ProfileID: profileID}, nil
	}
	copyItem := *item
	return &copyItem, nil
}

type fakeNotifier struct {
	sent    []notifier.Notification
	sendErr error
}

func (n *fakeNotifier) Send(_ context.Context, notification notifier.Notification) error {
	n.sent = append(n.sent, notification)
	return n.sendErr
}

type fakeRail struct {
	calls     int
	failCalls int
	failAll   bool
	chargeRef string
	chargeErr error
	inputs    []*rail.TransferInput
}

func (f *fakeRail) Code() int32 { return rail.CodeStripe }

func (f *fakeRail) CreateTransfer(_ context.Context, input *rail.TransferInput) (string, error) {
	f.calls++
	copyInput := *input
	f.inputs = append(f.inputs, &copyInput)
	if f.failAll || f.calls <= f.failCalls {
		return "", errors.New("rail unavailable")
	}
	return fmt.Sprintf("tr_%d", f.calls), nil
}

func (f *fakeRail) RetrieveChargeRef(_ context.Context, _ string) (string, error) {
	if f.chargeErr != nil {
		return "", f.chargeErr
	}
	return f.chargeRef, nil
}

type testEnv struct {
	payments  *fakePaymentRepo
	splits    *fakeSplitRepo
	transfers *fakeTransferRepo
	disputes  *fakeDisputeRepo
	selector  *fakeSelector
	profiles  *fakeProfileStore
	notify    *fakeNotifier
	rail      *fakeRail
	svc       *PayoutService
}

func newTestEnv() *testEnv {
	env := &testEnv{
		payments:  newFakePaymentRepo(),
		splits:    newFakeSplitRepo(),
		transfers: newFakeTransferRepo(),
		disputes:  newFakeDisputeRepo(),
		selector:  &fakeSelector{},
		profiles:  newFakeProfileStore(),
		notify:    &fakeNotifier{},
		rail:      &fakeRail{chargeRef: "ch_test"},
	}

	executor := NewTransferExecutor(rail.NewRegistry(env.rail), 3, time.Millisecond)
	executor.sleep = func(time.Duration) {}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	env.svc = NewPayoutService(
		env.payments,
		env.splits,
		env.transfers,
		env.disputes,
		env.selector,
		env.profiles,
		env.notify,
		executor,
		metrics.NewPayoutMetrics(prometheus.NewRegistry()),
		config.PayoutsConfig{TransferMaxAttempts: 3, TransferRetryDelay: time.Millisecond, SweepBatchSize: 100},
		logger,
	)
	return env
}

func (e *testEnv) seedReceivedPayment(missionID, freelancerID string, freelancerCents int64, commercialID *string, commercialCents int64) (*entity.Payment, *entity.FinanceSplit) {
	intentRef := "pi_" + missionID
	now := time.Now().UTC()
	payment := &entity.Payment{
		MissionID:         missionID,
		RecruiterID:       "recruiter-1",
		AmountCents:       10000,
		Currency:          "EUR",
		Status:            entity.PaymentStatusReceived,
		CheckoutSessionID: "cs_" + missionID,
		PaymentIntentRef:  &intentRef,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	_ = e.payments.UpsertByCheckoutSession(context.Background(), payment)

	split := &entity.FinanceSplit{
		PaymentID:          payment.ID,
		MissionID:          missionID,
		GrossCents:         10000,
		PlatformFeeCents:   10000 - freelancerCents - commercialCents,
		CommercialFeeCents: commercialCents,
		FreelancerCents:    freelancerCents,
		FreelancerID:       freelancerID,
		CommercialID:       commercialID,
		Status:             entity.FinanceStatusPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	_ = e.splits.Create(context.Background(), split)

	return payment, split
}

func (e *testEnv) makePayable(profileID, accountID string) {
	e.profiles.profiles[profileID] = &profile.PayoutProfile{
		ProfileID:      profileID,
		AccountID:      accountID,
		PayoutsEnabled: true,
		Contact:        profileID + "@example.com",
	}
}

func TestReleasePaysSingleFreelancer(t *testing.T) {
	env := newTestEnv()
	payment, _ := env.seedReceivedPayment("m-1", "freelancer-1", 8500, nil, 0)
	env.makePayable("freelancer-1", "acct_f1")

	outcome, err := env.svc.Release(context.Background(), payment.ID)
	if err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if outcome.PaymentStatus != entity.PaymentStatusDistributed {
		t.Fatalf("expected distributed payment, got %s", outcome.PaymentStatus)
	}
	if outcome.FinanceStatus != entity.FinanceStatusFundsReleased {
		t.Fatalf("expected funds_released split, got %s", outcome.FinanceStatus)
	}
	if len(outcome.Transfers) != 1 || outcome.Transfers[0].Status != entity.TransferStatusCreated {
		t.Fatalf("expected one created transfer, got %+v", outcome.Transfers)
	}
	if outcome.Transfers[0].AmountCents != 8500 {
		t.Fatalf("expected 8500 cents, got %d", outcome.Transfers[0].AmountCents)
	}

	stored, _ := env.payments.FindByID(context.Background(), payment.ID)
	if stored.ReleasedAt == nil || stored.DistributedAt == nil {
		t.Fatal("expected released_at and distributed_at to be set")
	}
	if len(env.rail.inputs) != 1 || env.rail.inputs[0].SourceChargeRef != "ch_test" {
		t.Fatalf("unexpected rail inputs: %+v", env.rail.inputs)
	}
}

func TestReleaseSecondCallIsIdempotent(t *testing.T) {
	env := newTestEnv()
	payment, _ := env.seedReceivedPayment("m-2", "freelancer-1", 8500, nil, 0)
	env.makePayable("freelancer-1", "acct_f1")

	if _, err := env.svc.Release(context.Background(), payment.ID); err != nil {
		t.Fatalf("first release failed: %v", err)
	}
	if _, err := env.svc.Release(context.Background(), payment.ID); !errors.Is(err, ErrAlreadyReleased) {
		t.Fatalf("expected ErrAlreadyReleased, got %v", err)
	}
	if env.rail.calls != 1 {
		t.Fatalf("expected exactly one rail call, got %d", env.rail.calls)
	}
	if len(env.transfers.records) != 1 {
		t.Fatalf("expected one transfer record, got %d", len(env.transfers.records))
	}
}

func TestReleaseSkipsUnconfiguredPayee(t *testing.T) {
	env := newTestEnv()
	payment, _ := env.seedReceivedPayment("m-3", "freelancer-2", 8500, nil, 0)

	outcome, err := env.svc.Release(context.Background(), payment.ID)
	if err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if outcome.PaymentStatus != entity.PaymentStatusErrored {
		t.Fatalf("expected errored payment, got %s", outcome.PaymentStatus)
	}
	if outcome.FinanceStatus != entity.FinanceStatusPartiallyReleased {
		t.Fatalf("expected partially_released split, got %s", outcome.FinanceStatus)
	}
	if len(outcome.Transfers) != 1 || outcome.Transfers[0].Status != entity.TransferStatusSkipped {
		t.Fatalf("expected one skipped transfer, got %+v", outcome.Transfers)
	}
	if env.rail.calls != 0 {
		t.Fatalf("expected no rail calls, got %d", env.rail.calls)
	}
	if len(env.notify.sent) != 1 || env.notify.sent[0].Type != notifier.TypeMissingStripe {
		t.Fatalf("expected one missing_stripe notification, got %+v", env.notify.sent)
	}

	stored, _ := env.payments.FindByID(context.Background(), payment.ID)
	if stored.ReleasedAt == nil {
		t.Fatal("skipped release must still close released_at")
	}
}

func TestReleaseBlockedByOpenDispute(t *testing.T) {
	env := newTestEnv()
	payment, _ := env.seedReceivedPayment("m-4", "freelancer-1", 8500, nil, 0)
	env.makePayable("freelancer-1", "acct_f1")
	_ = env.disputes.Create(context.Background(), &entity.Dispute{
		PaymentID: payment.ID,
		MissionID: "m-4",
		Status:    entity.DisputeStatusOpen,
	})

	_, err := env.svc.Release(context.Background(), payment.ID)
	if !errors.Is(err, ErrDisputeOpen) {
		t.Fatalf("expected ErrDisputeOpen, got %v", err)
	}
	if len(env.transfers.records) != 0 {
		t.Fatalf("expected zero transfer records, got %d", len(env.transfers.records))
	}

	stored, _ := env.payments.FindByID(context.Background(), payment.ID)
	if stored.ReleasedAt != nil {
		t.Fatal("blocked release must not touch released_at")
	}
}

func TestReleaseAbortsBeforeSideEffectsWithoutChargeRef(t *testing.T) {
	env := newTestEnv()
	payment, _ := env.seedReceivedPayment("m-5", "freelancer-1", 8500, nil, 0)
	env.makePayable("freelancer-1", "acct_f1")
	env.rail.chargeRef = ""

	_, err := env.svc.Release(context.Background(), payment.ID)
	if !errors.Is(err, ErrChargeRefMissing) {
		t.Fatalf("expected ErrChargeRefMissing, got %v", err)
	}
	if len(env.transfers.records) != 0 {
		t.Fatal("expected no transfer records before abort")
	}

	stored, _ := env.payments.FindByID(context.Background(), payment.ID)
	if stored.ReleasedAt != nil {
		t.Fatal("aborted release must leave the payment eligible")
	}
}

func TestReleaseRecordsFailureAfterExhaustedRetries(t *testing.T) {
	env := newTestEnv()
	payment, _ := env.seedReceivedPayment("m-6", "freelancer-1", 8500, nil, 0)
	env.makePayable("freelancer-1", "acct_f1")
	env.rail.failAll = true

	outcome, err := env.svc.Release(context.Background(), payment.ID)
	if err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if env.rail.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", env.rail.calls)
	}
	if outcome.PaymentStatus != entity.PaymentStatusErrored || outcome.FinanceStatus != entity.FinanceStatusPartiallyReleased {
		t.Fatalf("unexpected statuses: %s / %s", outcome.PaymentStatus, outcome.FinanceStatus)
	}
	if len(outcome.Transfers) != 1 || outcome.Transfers[0].Status != entity.TransferStatusFailed {
		t.Fatalf("expected one failed transfer, got %+v", outcome.Transfers)
	}
	if len(env.notify.sent) != 1 || env.notify.sent[0].Type != notifier.TypeError {
		t.Fatalf("expected one error notification, got %+v", env.notify.sent)
	}
}

func TestReleaseMixedPayeesFreelancerFirst(t *testing.T) {
	env := newTestEnv()
	commercialID := "commercial-1"
	payment, _ := env.seedReceivedPayment("m-7", "freelancer-1", 7000, &commercialID, 1500)
	env.makePayable("freelancer-1", "acct_f1")

	outcome, err := env.svc.Release(context.Background(), payment.ID)
	if err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if outcome.PaymentStatus != entity.PaymentStatusDistributed {
		t.Fatalf("expected distributed payment, got %s", outcome.PaymentStatus)
	}
	if outcome.FinanceStatus != entity.FinanceStatusPartiallyReleased {
		t.Fatalf("expected partially_released split, got %s", outcome.FinanceStatus)
	}
	if len(outcome.Transfers) != 2 {
		t.Fatalf("expected two transfers, got %d", len(outcome.Transfers))
	}
	if outcome.Transfers[0].Type != entity.TransferTypeFreelancerPayout {
		t.Fatal("freelancer must be processed first")
	}
	if outcome.Transfers[1].Status != entity.TransferStatusSkipped {
		t.Fatalf("expected skipped commercial transfer, got %s", outcome.Transfers[1].Status)
	}
}

func TestAggregateOutcome(t *testing.T) {
	cases := []struct {
		created, failed, skipped int
		payment, finance         string
	}{
		{1, 0, 0, entity.PaymentStatusDistributed, entity.FinanceStatusFundsReleased},
		{2, 0, 0, entity.PaymentStatusDistributed, entity.FinanceStatusFundsReleased},
		{1, 1, 0, entity.PaymentStatusErrored, entity.FinanceStatusPartiallyReleased},
		{0, 1, 1, entity.PaymentStatusErrored, entity.FinanceStatusPartiallyReleased},
		{0, 0, 1, entity.PaymentStatusErrored, entity.FinanceStatusPartiallyReleased},
		{1, 0, 1, entity.PaymentStatusDistributed, entity.FinanceStatusPartiallyReleased},
		{0, 0, 0, entity.PaymentStatusDistributed, entity.FinanceStatusFundsReleased},
	}

	for _, tc := range cases {
		payment, finance := aggregateOutcome(tc.created, tc.failed, tc.skipped)
		if payment != tc.payment || finance != tc.finance {
			t.Fatalf("aggregate(%d,%d,%d) = %s/%s, expected %s/%s",
				tc.created, tc.failed, tc.skipped, payment, finance, tc.payment, tc.finance)
		}
	}
}

func TestRetryPayeeTransferRecoversSkippedPayee(t *testing.T) {
	env := newTestEnv()
	payment, _ := env.seedReceivedPayment("m-8", "freelancer-3", 8500, nil, 0)

	if _, err := env.svc.Release(context.Background(), payment.ID); err != nil {
		t.Fatalf("initial release failed: %v", err)
	}

	env.makePayable("freelancer-3", "acct_f3")
	record, err := env.svc.RetryPayeeTransfer(context.Background(), payment.ID, "freelancer-3")
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if record.Status != entity.TransferStatusCreated || record.ExternalTransferID == nil {
		t.Fatalf("expected created transfer, got %+v", record)
	}

	split, _ := env.splits.FindByPaymentID(context.Background(), payment.ID)
	if split.Status != entity.FinanceStatusFundsReleased {
		t.Fatalf("expected funds_released split, got %s", split.Status)
	}
	stored, _ := env.payments.FindByID(context.Background(), payment.ID)
	if stored.Status != entity.PaymentStatusDistributed {
		t.Fatalf("expected distributed payment after retry, got %s", stored.Status)
	}
	if len(env.transfers.records) != 1 {
		t.Fatalf("retry must reuse the skipped record, got %d records", len(env.transfers.records))
	}
}

func TestRetryRejectsNonPayee(t *testing.T) {
	env := newTestEnv()
	payment, _ := env.seedReceivedPayment("m-9", "freelancer-1", 8500, nil, 0)

	if _, err := env.svc.RetryPayeeTransfer(context.Background(), payment.ID, "stranger"); !errors.Is(err, ErrNotPayee) {
		t.Fatalf("expected ErrNotPayee, got %v", err)
	}
}

func TestRetryRefusesDoublePay(t *testing.T) {
	env := newTestEnv()
	payment, _ := env.seedReceivedPayment("m-10", "freelancer-1", 8500, nil, 0)
	env.makePayable("freelancer-1", "acct_f1")

	if _, err := env.svc.Release(context.Background(), payment.ID); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if _, err := env.svc.RetryPayeeTransfer(context.Background(), payment.ID, "freelancer-1"); !errors.Is(err, ErrTransferAlreadyCompleted) {
		t.Fatalf("expected ErrTransferAlreadyCompleted, got %v", err)
	}
	if env.rail.calls != 1 {
		t.Fatalf("expected one rail call total, got %d", env.rail.calls)
	}
}

func TestRetryRejectsUnpayablePayee(t *testing.T) {
	env := newTestEnv()
	payment, _ := env.seedReceivedPayment("m-11", "freelancer-4", 8500, nil, 0)

	if _, err := env.svc.Release(context.Background(), payment.ID); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if _, err := env.svc.RetryPayeeTransfer(context.Background(), payment.ID, "freelancer-4"); !errors.Is(err, ErrPayeeNotPayable) {
		t.Fatalf("expected ErrPayeeNotPayable, got %v", err)
	}
}

func TestRunSweepBatchIsolatesFailures(t *testing.T) {
	env := newTestEnv()
	payable, _ := env.seedReceivedPayment("m-12", "freelancer-1", 8500, nil, 0)
	disputed, _ := env.seedReceivedPayment("m-13", "freelancer-1", 8500, nil, 0)
	env.makePayable("freelancer-1", "acct_f1")
	_ = env.disputes.Create(context.Background(), &entity.Dispute{
		PaymentID: disputed.ID,
		Status:    entity.DisputeStatusOpen,
	})
	env.selector.candidates = []*repository.ReleaseCandidate{
		{PaymentID: payable.ID, FreelancerID: "freelancer-1", FreelancerCents: 8500},
		{PaymentID: disputed.ID, FreelancerID: "freelancer-1", FreelancerCents: 8500},
	}

	report, err := env.svc.RunSweepBatch(context.Background())
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if report.Processed != 2 || report.Successful != 1 || report.Skipped != 1 || report.Failed != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestRecordFundsReceivedIsIdempotent(t *testing.T) {
	env := newTestEnv()
	input := &FundsReceivedInput{
		MissionID:         "m-14",
		RecruiterID:       "recruiter-1",
		CheckoutSessionID: "cs_m-14",
		PaymentIntentRef:  "pi_m-14",
		AmountCents:       10000,
		Currency:          "eur",
		PlatformFeeCents:  1500,
		FreelancerCents:   8500,
		FreelancerID:      "freelancer-1",
	}

	first, err := env.svc.RecordFundsReceived(context.Background(), input)
	if err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	second, err := env.svc.RecordFundsReceived(context.Background(), input)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("replay created a second payment: %d vs %d", first.ID, second.ID)
	}
	if first.Status != entity.PaymentStatusReceived || first.Currency != "EUR" {
		t.Fatalf("unexpected payment: %+v", first)
	}
	if len(env.splits.splits) != 1 {
		t.Fatalf("expected one finance split, got %d", len(env.splits.splits))
	}
}

func TestOpenDisputeRules(t *testing.T) {
	env := newTestEnv()
	payment, _ := env.seedReceivedPayment("m-15", "freelancer-1", 8500, nil, 0)

	dispute, err := env.svc.OpenDispute(context.Background(), &OpenDisputeInput{
		PaymentID:  payment.ID,
		ReporterID: "recruiter-1",
		Reason:     "work not delivered",
	})
	if err != nil {
		t.Fatalf("open dispute failed: %v", err)
	}
	if dispute.Status != entity.DisputeStatusOpen || dispute.MissionID != "m-15" {
		t.Fatalf("unexpected dispute: %+v", dispute)
	}

	if _, err := env.svc.OpenDispute(context.Background(), &OpenDisputeInput{
		PaymentID:  payment.ID,
		ReporterID: "freelancer-1",
		Reason:     "counter claim",
	}); !errors.Is(err, ErrDisputeAlreadyOpen) {
		t.Fatalf("expected ErrDisputeAlreadyOpen, got %v", err)
	}
}

func TestResolveDisputeReenablesRelease(t *testing.T) {
	env := newTestEnv()
	payment, _ := env.seedReceivedPayment("m-16", "freelancer-1", 8500, nil, 0)
	env.makePayable("freelancer-1", "acct_f1")

	dispute, err := env.svc.OpenDispute(context.Background(), &OpenDisputeInput{
		PaymentID:  payment.ID,
		ReporterID: "recruiter-1",
		Reason:     "scope disagreement",
	})
	if err != nil {
		t.Fatalf("open dispute failed: %v", err)
	}

	resolved, err := env.svc.ResolveDispute(context.Background(), dispute.ID)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if resolved.Status != entity.DisputeStatusResolved || resolved.ResolvedAt == nil {
		t.Fatalf("unexpected dispute: %+v", resolved)
	}

	ok, err := env.svc.CanDistribute(context.Background(), payment.ID)
	if err != nil || !ok {
		t.Fatalf("expected distribution re-enabled, got ok=%v err=%v", ok, err)
	}
	if _, err := env.svc.Release(context.Background(), payment.ID); err != nil {
		t.Fatalf("release after resolve failed: %v", err)
	}
}

func TestResolveDisputeAutoReleasePolicy(t *testing.T) {
	env := newTestEnv()
	env.svc.payoutsCfg.AutoReleaseOnDisputeResolve = true
	payment, _ := env.seedReceivedPayment("m-17", "freelancer-1", 8500, nil, 0)
	env.makePayable("freelancer-1", "acct_f1")

	dispute, err := env.svc.OpenDispute(context.Background(), &OpenDisputeInput{
		PaymentID:  payment.ID,
		ReporterID: "recruiter-1",
		Reason:     "scope disagreement",
	})
	if err != nil {
		t.Fatalf("open dispute failed: %v", err)
	}
	if _, err := env.svc.RejectDispute(context.Background(), dispute.ID); err != nil {
		t.Fatalf("reject failed: %v", err)
	}

	stored, _ := env.payments.FindByID(context.Background(), payment.ID)
	if stored.Status != entity.PaymentStatusDistributed || stored.ReleasedAt == nil {
		t.Fatalf("expected auto release after rejection, got %+v", stored)
	}
}

func TestExecutorUsesFixedDelayBetweenAttempts(t *testing.T) {
	railClient := &fakeRail{failCalls: 2}
	executor := NewTransferExecutor(rail.NewRegistry(railClient), 3, 2*time.Second)

	var slept []time.Duration
	executor.sleep = func(d time.Duration) { slept = append(slept, d) }

	transferID, err := executor.Execute(context.Background(), rail.CodeStripe, &rail.TransferInput{
		AmountCents:        100,
		Currency:           "EUR",
		DestinationAccount: "acct_1",
		SourceChargeRef:    "ch_1",
	})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if transferID != "tr_3" {
		t.Fatalf("unexpected transfer id %s", transferID)
	}
	if len(slept) != 2 || slept[0] != 2*time.Second || slept[1] != 2*time.Second {
		t.Fatalf("unexpected sleep pattern: %v", slept)
	}
}

func TestExecutorStopsWhenContextCanceled(t *testing.T) {
	railClient := &fakeRail{failAll: true}
	executor := NewTransferExecutor(rail.NewRegistry(railClient), 3, 2*time.Second)

	var slept int
	executor.sleep = func(time.Duration) { slept++ }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := executor.Execute(ctx, rail.CodeStripe, &rail.TransferInput{
		AmountCents:        100,
		Currency:           "EUR",
		DestinationAccount: "acct_1",
		SourceChargeRef:    "ch_1",
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if railClient.calls != 1 {
		t.Fatalf("expected a single attempt, got %d", railClient.calls)
	}
	if slept != 0 {
		t.Fatalf("expected no sleep after cancellation, slept %d times", slept)
	}
}

func TestReleaseSurfacesRecordWriteFailureAfterTransfer(t *testing.T) {
	env := newTestEnv()
	payment, _ := env.seedReceivedPayment("m-20", "freelancer-1", 8500, nil, 0)
	env.makePayable("freelancer-1", "acct_f1")
	env.transfers.createErr = errors.New("connection reset")

	_, err := env.svc.Release(context.Background(), payment.ID)
	if err == nil {
		t.Fatal("expected error when the record write fails after the transfer")
	}
	if !strings.Contains(err.Error(), "tr_1") {
		t.Fatalf("error must carry the external transfer id, got %v", err)
	}
	if env.rail.calls != 1 {
		t.Fatalf("expected one rail call, got %d", env.rail.calls)
	}

	stored, _ := env.payments.FindByID(context.Background(), payment.ID)
	if stored.ReleasedAt != nil {
		t.Fatal("released_at must stay unset when the record write fails")
	}
	if stored.Status != entity.PaymentStatusReceived {
		t.Fatalf("payment must stay received for reconciliation, got %s", stored.Status)
	}
}

func TestRetrySurfacesRecordWriteFailureAfterTransfer(t *testing.T) {
	env := newTestEnv()
	payment, _ := env.seedReceivedPayment("m-21", "freelancer-1", 8500, nil, 0)
	env.makePayable("freelancer-1", "acct_f1")
	env.transfers.createErr = errors.New("connection reset")

	_, err := env.svc.RetryPayeeTransfer(context.Background(), payment.ID, "freelancer-1")
	if err == nil {
		t.Fatal("expected error when the record write fails after the transfer")
	}
	if !strings.Contains(err.Error(), "tr_1") {
		t.Fatalf("error must carry the external transfer id, got %v", err)
	}
}

func TestRetryLeavesSplitPartialWhileOtherPayeeOutstanding(t *testing.T) {
	env := newTestEnv()
	commercialID := "commercial-1"
	payment, _ := env.seedReceivedPayment("m-22", "freelancer-1", 7000, &commercialID, 1500)

	// Neither payee is onboarded, so the release skips both.
	if _, err := env.svc.Release(context.Background(), payment.ID); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	stored, _ := env.payments.FindByID(context.Background(), payment.ID)
	if stored.Status != entity.PaymentStatusErrored {
		t.Fatalf("expected errored payment, got %s", stored.Status)
	}

	env.makePayable("freelancer-1", "acct_f1")
	record, err := env.svc.RetryPayeeTransfer(context.Background(), payment.ID, "freelancer-1")
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if record.Status != entity.TransferStatusCreated {
		t.Fatalf("expected created transfer, got %+v", record)
	}

	split, _ := env.splits.FindByPaymentID(context.Background(), payment.ID)
	if split.Status != entity.FinanceStatusPartiallyReleased {
		t.Fatalf("split must stay partially_released while the commission is outstanding, got %s", split.Status)
	}
	stored, _ = env.payments.FindByID(context.Background(), payment.ID)
	if stored.Status != entity.PaymentStatusErrored {
		t.Fatalf("payment must stay errored while the commission is outstanding, got %s", stored.Status)
	}
}

func TestReleaseLosingClosureLeavesSplitToWinner(t *testing.T) {
	env := newTestEnv()
	payment, _ := env.seedReceivedPayment("m-23", "freelancer-1", 8500, nil, 0)
	env.makePayable("freelancer-1", "acct_f1")
	env.payments.loseClose = true

	outcome, err := env.svc.Release(context.Background(), payment.ID)
	if err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if outcome.PaymentStatus != entity.PaymentStatusDistributed {
		t.Fatalf("unexpected outcome status: %s", outcome.PaymentStatus)
	}

	split, _ := env.splits.FindByPaymentID(context.Background(), payment.ID)
	if split.Status != entity.FinanceStatusPending {
		t.Fatalf("losing run must not write the split status, got %s", split.Status)
	}
}
