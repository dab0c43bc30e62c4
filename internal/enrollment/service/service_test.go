package service

//go:generate mockgen -source=../ports/registrar.go -destination=../mocks/registrar_mock.go -package=mocks Registrar

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"praman/internal/did"
	"praman/internal/enrollment/device"
	"praman/internal/enrollment/mocks"
	"praman/internal/enrollment/models"
	"praman/internal/enrollment/store"
	"praman/internal/platform/metrics"
	resolvermodels "praman/internal/resolver/models"
	dErrors "praman/pkg/domain-errors"
	"praman/pkg/platform/audit"
	"praman/pkg/platform/sentinel"
	"praman/pkg/requestcontext"
	fixtures "praman/pkg/testutil"
)

const (
	testOrigin    = "https://praman.example"
	testUserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
)

type recordingAuditor struct {
	events []audit.Event
}

func (r *recordingAuditor) Emit(_ context.Context, e audit.Event) error {
	r.events = append(r.events, e)
	return nil
}

type ServiceSuite struct {
	suite.Suite
	ctx       context.Context
	ctrl      *gomock.Controller
	sessions  *store.InMemoryStore
	registrar *mocks.MockRegistrar
	deriver   *did.Deriver
	auditor   *recordingAuditor
	metrics   *metrics.Metrics
	service   *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), fixtures.FixedTime)
	s.ctrl = gomock.NewController(s.T())
	s.sessions = store.NewInMemoryStore()
	s.registrar = mocks.NewMockRegistrar(s.ctrl)
	s.deriver = did.NewDeriver()
	s.auditor = &recordingAuditor{}
	s.metrics = metrics.NewWithRegistry(prometheus.NewRegistry())
	s.service = New(s.sessions, s.registrar, s.deriver, Config{
		RPID:   "praman.example",
		RPName: "Praman",
		Origin: testOrigin,
	}, WithAuditor(s.auditor), WithMetrics(s.metrics), WithRandom(func(b []byte) (int, error) {
		copy(b, bytes.Repeat([]byte{0x42}, len(b)))
		return len(b), nil
	}))
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func clientData(typ, challenge, origin string) string {
	raw, _ := json.Marshal(models.ClientData{Type: typ, Challenge: challenge, Origin: origin})
	return base64.RawURLEncoding.EncodeToString(raw)
}

func (s *ServiceSuite) p256SPKI() []byte {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	s.Require().NoError(err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	s.Require().NoError(err)
	return der
}

func (s *ServiceSuite) start(userID string) *models.CreationOptions {
	opts, err := s.service.Start(s.ctx, userID)
	s.Require().NoError(err)
	return opts
}

func (s *ServiceSuite) verifyCommand(userID, challenge string, spki []byte) models.VerifyCommand {
	return models.VerifyCommand{
		UserID:         userID,
		CredentialID:   "cred-1",
		ClientDataJSON: clientData(models.ClientDataTypeCreate, challenge, testOrigin),
		PublicKey:      base64.RawURLEncoding.EncodeToString(spki),
		ClientIP:       "203.0.113.7",
		UserAgent:      testUserAgent,
	}
}

func (s *ServiceSuite) TestStart() {
	opts := s.start("user-1")

	s.Equal(base64.RawURLEncoding.EncodeToString(bytes.Repeat([]byte{0x42}, models.ChallengeSize)), opts.Challenge)
	s.Equal("praman.example", opts.RP.ID)
	s.Equal("user-1", opts.User.ID)
	s.Equal(int64(60000), opts.Timeout)
	s.Equal("none", opts.Attestation)
	s.Equal("platform", opts.AuthenticatorSelection.AuthenticatorAttachment)
	s.Equal("required", opts.AuthenticatorSelection.UserVerification)
	s.Len(opts.PubKeyCredParams, 3)
	s.Equal(models.AlgES256, opts.PubKeyCredParams[0].Alg)

	session, err := s.sessions.Find(s.ctx, "user-1")
	s.Require().NoError(err)
	s.Equal(opts.Challenge, session.Challenge)
	s.Equal(fixtures.FixedTime.Add(DefaultSessionTTL), session.ExpiresAt)

	s.Require().Len(s.auditor.events, 1)
	s.Equal(string(audit.EventEnrollmentStarted), s.auditor.events[0].Action)
}

func (s *ServiceSuite) TestStart_GeneratesUserID() {
	opts := s.start("  ")
	s.True(strings.HasPrefix(opts.User.ID, "user-"))

	_, err := s.sessions.Find(s.ctx, opts.User.ID)
	s.NoError(err)
}

func (s *ServiceSuite) TestStart_RefusesToReplacePendingSession() {
	first := s.start("user-1")

	_, err := s.service.Start(s.ctx, "user-1")
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	session, err := s.sessions.Find(s.ctx, "user-1")
	s.Require().NoError(err)
	s.Equal(first.Challenge, session.Challenge)

	late := requestcontext.WithTime(context.Background(), fixtures.FixedTime.Add(DefaultSessionTTL))
	_, err = s.service.Start(late, "user-1")
	s.NoError(err, "an expired session can be replaced")
}

func (s *ServiceSuite) TestStart_Errors() {
	_, err := s.service.Start(s.ctx, strings.Repeat("u", models.MaxUserIDLength+1))
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

	failing := New(s.sessions, s.registrar, s.deriver, Config{}, WithRandom(func([]byte) (int, error) {
		return 0, errors.New("entropy exhausted")
	}))
	_, err = failing.Start(s.ctx, "user-1")
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *ServiceSuite) TestVerify_P256() {
	opts := s.start("user-1")
	spki := s.p256SPKI()
	cmd := s.verifyCommand("user-1", opts.Challenge, spki)

	expected, err := s.deriver.DeriveBytes(spki, device.HardwareID("cred-1", "203.0.113.7", testUserAgent))
	s.Require().NoError(err)

	s.registrar.EXPECT().
		Register(gomock.Any(), resolvermodels.RegisterCommand{
			DID:       expected.String(),
			PublicKey: spki,
			KeyType:   string(resolvermodels.KeyTypeP256),
		}).
		Return(&resolvermodels.Document{ID: expected.String()}, nil)

	result, err := s.service.Verify(s.ctx, cmd)
	s.Require().NoError(err)
	s.Equal(expected, result.DID)
	s.Equal(device.TypeMobile, result.DeviceType)
	s.Contains(result.DeviceName, "iPhone")
	s.Equal(fixtures.FixedTime, result.EnrolledAt)

	_, err = s.sessions.Find(s.ctx, "user-1")
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.Equal(1.0, testutil.ToFloat64(s.metrics.Enrollments.WithLabelValues("success")))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.DIDsDerived))
	last := s.auditor.events[len(s.auditor.events)-1]
	s.Equal(string(audit.EventEnrollmentDone), last.Action)
	s.Equal(expected.String(), last.DID)
	s.Equal(string(did.StateDIDDerived), last.State)
}

func (s *ServiceSuite) TestVerify_Ed25519StoresRawKey() {
	opts := s.start("user-1")
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	s.Require().NoError(err)
	spki, err := x509.MarshalPKIXPublicKey(pub)
	s.Require().NoError(err)

	s.registrar.EXPECT().Register(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, cmd resolvermodels.RegisterCommand) (*resolvermodels.Document, error) {
			s.Equal(string(resolvermodels.KeyTypeEd25519), cmd.KeyType)
			s.Equal([]byte(pub), cmd.PublicKey)
			return &resolvermodels.Document{ID: cmd.DID}, nil
		})

	_, err = s.service.Verify(s.ctx, s.verifyCommand("user-1", opts.Challenge, spki))
	s.NoError(err)
}

func (s *ServiceSuite) TestVerify_SameAuthenticatorSameDID() {
	spki := s.p256SPKI()
	var dids []did.DID
	s.registrar.EXPECT().Register(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, cmd resolvermodels.RegisterCommand) (*resolvermodels.Document, error) {
			dids = append(dids, did.DID(cmd.DID))
			return &resolvermodels.Document{ID: cmd.DID}, nil
		}).Times(2)

	for range 2 {
		opts := s.start("user-1")
		_, err := s.service.Verify(s.ctx, s.verifyCommand("user-1", opts.Challenge, spki))
		s.Require().NoError(err)
	}
	s.Equal(dids[0], dids[1])
}

func (s *ServiceSuite) TestVerify_SessionErrors() {
	s.Run("missing session", func() {
		_, err := s.service.Verify(s.ctx, s.verifyCommand("nobody", "c", s.p256SPKI()))
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
	s.Run("expired session", func() {
		opts := s.start("user-2")
		late := requestcontext.WithTime(context.Background(), fixtures.FixedTime.Add(DefaultSessionTTL))
		_, err := s.service.Verify(late, s.verifyCommand("user-2", opts.Challenge, s.p256SPKI()))
		s.True(dErrors.HasCode(err, dErrors.CodeExpired))

		_, err = s.sessions.Find(s.ctx, "user-2")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Enrollments.WithLabelValues("expired")))
}

func (s *ServiceSuite) TestVerify_ClientDataChecks() {
	opts := s.start("user-1")
	spki := s.p256SPKI()
	cases := map[string]string{
		"not base64":      "***",
		"not json":        base64.RawURLEncoding.EncodeToString([]byte("nope")),
		"wrong type":      clientData("webauthn.get", opts.Challenge, testOrigin),
		"wrong challenge": clientData(models.ClientDataTypeCreate, "b3RoZXI", testOrigin),
		"wrong origin":    clientData(models.ClientDataTypeCreate, opts.Challenge, "https://evil.example"),
	}
	for name, cd := range cases {
		s.Run(name, func() {
			cmd := s.verifyCommand("user-1", opts.Challenge, spki)
			cmd.ClientDataJSON = cd
			_, err := s.service.Verify(s.ctx, cmd)
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput), err)
		})
	}

	_, err := s.sessions.Find(s.ctx, "user-1")
	s.NoError(err, "a rejected response leaves the session for a retry")
}

func (s *ServiceSuite) TestVerify_PaddedClientDataIsAccepted() {
	opts := s.start("user-1")
	raw, _ := json.Marshal(models.ClientData{Type: models.ClientDataTypeCreate, Challenge: opts.Challenge, Origin: testOrigin})
	cmd := s.verifyCommand("user-1", opts.Challenge, s.p256SPKI())
	cmd.ClientDataJSON = base64.URLEncoding.EncodeToString(raw)

	s.registrar.EXPECT().Register(gomock.Any(), gomock.Any()).Return(&resolvermodels.Document{}, nil)
	_, err := s.service.Verify(s.ctx, cmd)
	s.NoError(err)
}

func (s *ServiceSuite) TestVerify_InvalidPublicKey() {
	opts := s.start("user-1")
	cases := map[string]string{
		"not base64": "%%%",
		"not spki":   base64.RawURLEncoding.EncodeToString([]byte("garbage")),
		"p384 curve": func() string {
			key, _ := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
			der, _ := x509.MarshalPKIXPublicKey(&key.PublicKey)
			return base64.RawURLEncoding.EncodeToString(der)
		}(),
	}
	for name, pk := range cases {
		s.Run(name, func() {
			cmd := s.verifyCommand("user-1", opts.Challenge, nil)
			cmd.PublicKey = pk
			_, err := s.service.Verify(s.ctx, cmd)
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidKeyFormat), err)
		})
	}
}

func (s *ServiceSuite) TestVerify_RequiredFields() {
	cmd := s.verifyCommand("user-1", "c", s.p256SPKI())
	cmd.CredentialID = ""
	_, err := s.service.Verify(s.ctx, cmd)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

	cmd = s.verifyCommand("", "c", s.p256SPKI())
	_, err = s.service.Verify(s.ctx, cmd)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *ServiceSuite) TestVerify_Duplicate() {
	opts := s.start("user-1")
	s.registrar.EXPECT().Register(gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeConflict, "did already registered"))

	_, err := s.service.Verify(s.ctx, s.verifyCommand("user-1", opts.Challenge, s.p256SPKI()))
	dup, ok := models.AsDuplicate(err)
	s.Require().True(ok)
	s.True(did.IsValid(dup.DID.String()))
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Enrollments.WithLabelValues("duplicate")))

	last := s.auditor.events[len(s.auditor.events)-1]
	s.Equal(audit.OutcomeFailure, last.Outcome)
	s.Equal(string(did.StateRejected), last.State)
}

func (s *ServiceSuite) TestVerify_RegistrarFailure() {
	opts := s.start("user-1")
	s.registrar.EXPECT().Register(gomock.Any(), gomock.Any()).
		Return(nil, errors.New("connection reset"))

	_, err := s.service.Verify(s.ctx, s.verifyCommand("user-1", opts.Challenge, s.p256SPKI()))
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	_, ok := models.AsDuplicate(err)
	s.False(ok)

	_, err = s.sessions.Find(s.ctx, "user-1")
	s.ErrorIs(err, sentinel.ErrNotFound, "the challenge was consumed before registering")
}

func (s *ServiceSuite) TestVerify_ChallengeConsumedElsewhere() {
	opts := s.start("user-1")
	cmd := s.verifyCommand("user-1", opts.Challenge, s.p256SPKI())

	// Another replica sharing the store wins the race after our Find.
	racing := &racingStore{SessionStore: s.sessions}
	svc := New(racing, s.registrar, s.deriver, Config{Origin: testOrigin})

	_, err := svc.Verify(s.ctx, cmd)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

// racingStore consumes the session between Find and the caller's Consume.
type racingStore struct {
	store.SessionStore
}

func (r *racingStore) Find(ctx context.Context, userID string) (models.Session, error) {
	session, err := r.SessionStore.Find(ctx, userID)
	if err == nil {
		_, _ = r.SessionStore.Consume(ctx, userID, session.Challenge)
	}
	return session, err
}

func (s *ServiceSuite) TestVerify_KeepsSessionStartedAfterFind() {
	opts := s.start("user-1")
	cmd := s.verifyCommand("user-1", opts.Challenge, s.p256SPKI())

	replacing := &replacingStore{SessionStore: s.sessions, challenge: "bmV3ZXItY2hhbGxlbmdl"}
	svc := New(replacing, s.registrar, s.deriver, Config{Origin: testOrigin})

	_, err := svc.Verify(s.ctx, cmd)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	pending, err := s.sessions.Find(s.ctx, "user-1")
	s.Require().NoError(err)
	s.Equal("bmV3ZXItY2hhbGxlbmdl", pending.Challenge)
}

// replacingStore swaps in a fresh session between Find and the caller's
// Consume, as a later Start on another replica would.
type replacingStore struct {
	store.SessionStore
	challenge string
}

func (r *replacingStore) Find(ctx context.Context, userID string) (models.Session, error) {
	session, err := r.SessionStore.Find(ctx, userID)
	if err == nil {
		_, _ = r.SessionStore.Consume(ctx, userID, session.Challenge)
		fresh := session
		fresh.Challenge = r.challenge
		_ = r.SessionStore.Create(ctx, fresh)
	}
	return session, err
}

func (s *ServiceSuite) TestVerify_ConcurrentCallsConsumeChallengeOnce() {
	opts := s.start("user-1")
	s.registrar.EXPECT().Register(gomock.Any(), gomock.Any()).
		Return(&resolvermodels.Document{}, nil).Times(1)

	const attempts = 8
	cmds := make([]models.VerifyCommand, attempts)
	for i := range cmds {
		cmds[i] = s.verifyCommand("user-1", opts.Challenge, s.p256SPKI())
	}

	succeeded, errs := fixtures.RunConcurrentCollect(attempts, func(i int) error {
		_, err := s.service.Verify(s.ctx, cmds[i])
		return err
	})

	s.Equal(int32(1), succeeded)
	s.Len(errs, attempts-1)
	for _, err := range errs {
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	}
}

func TestSessionTTLDefault(t *testing.T) {
	svc := New(store.NewInMemoryStore(), nil, did.NewDeriver(), Config{SessionTTL: -time.Second})
	if svc.cfg.SessionTTL != DefaultSessionTTL {
		t.Fatalf("expected default ttl, got %s", svc.cfg.SessionTTL)
	}
}
