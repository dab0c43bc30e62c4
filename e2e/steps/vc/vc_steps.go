//go:build e2e

package vc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/cucumber/godog"
)

// subjectDIDKey matches the key the resolver steps save the registered DID under.
const subjectDIDKey = "subject_did"

const validitySeconds = 3600

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	GET(path string) error
	GetResponseField(field string) (any, error)
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	Saved(key string) (string, error)
}

// RegisterSteps registers credential issuance and verification steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &vcSteps{tc: tc}

	// Issuance
	ctx.Step(`^I issue a credential to the registered DID with claim "([^"]*)" set to (true|false)$`, steps.issueToRegisteredDID)
	ctx.Step(`^I issue a credential to "([^"]*)" with claim "([^"]*)" set to (true|false)$`, steps.issueToSubject)
	ctx.Step(`^I issue a batch of (\d+) credentials to the registered DID$`, steps.issueBatch)
	ctx.Step(`^I request the issuer details$`, steps.requestIssuer)

	// Verification
	ctx.Step(`^I verify the issued credential$`, steps.verifyIssued)
	ctx.Step(`^I tamper with claim "([^"]*)" of the issued credential$`, steps.tamperWithClaim)
	ctx.Step(`^the verification result should be valid$`, steps.resultShouldBeValid)
	ctx.Step(`^the verification result should be invalid with reason "([^"]*)"$`, steps.resultShouldBeInvalid)
	ctx.Step(`^I verify a presentation of every issued credential$`, steps.verifyPresentation)
	ctx.Step(`^the presentation should be (verified|rejected)$`, steps.presentationShouldBe)

	// Revocation
	ctx.Step(`^I revoke the issued credential with reason "([^"]*)"$`, steps.revokeIssued)
	ctx.Step(`^I check the status of the issued credential$`, steps.checkStatus)
}

type vcSteps struct {
	tc         TestContext
	credential map[string]any
	issuedAll  []map[string]any
}

func (s *vcSteps) issueToRegisteredDID(ctx context.Context, claim, value string) error {
	subject, err := s.tc.Saved(subjectDIDKey)
	if err != nil {
		return err
	}
	return s.issueToSubject(ctx, subject, claim, value)
}

func (s *vcSteps) issueToSubject(ctx context.Context, subject, claim, value string) error {
	flag, err := strconv.ParseBool(value)
	if err != nil {
		return err
	}
	body := map[string]any{
		"subjectDID":     subject,
		"claims":         map[string]any{claim: flag},
		"validityPeriod": validitySeconds,
	}
	if err := s.tc.POST("/credentials/issue", body); err != nil {
		return err
	}
	if s.tc.GetLastResponseStatus() != 201 {
		s.credential = nil
		return nil
	}

	var credential map[string]any
	if err := json.Unmarshal(s.tc.GetLastResponseBody(), &credential); err != nil {
		return fmt.Errorf("issued credential is not JSON: %w", err)
	}
	s.credential = credential
	s.issuedAll = append(s.issuedAll, credential)
	return nil
}

func (s *vcSteps) issueBatch(ctx context.Context, count int) error {
	subject, err := s.tc.Saved(subjectDIDKey)
	if err != nil {
		return err
	}
	items := make([]map[string]any, count)
	for i := range items {
		items[i] = map[string]any{
			"subjectDID":     subject,
			"claims":         map[string]any{"batchIndex": i},
			"validityPeriod": validitySeconds,
		}
	}
	return s.tc.POST("/credentials/issue/batch", map[string]any{"items": items})
}

func (s *vcSteps) requestIssuer(ctx context.Context) error {
	return s.tc.GET("/credentials/issuer")
}

func (s *vcSteps) issued() (map[string]any, error) {
	if s.credential == nil {
		return nil, fmt.Errorf("no credential was issued in this scenario")
	}
	return s.credential, nil
}

func (s *vcSteps) verifyIssued(ctx context.Context) error {
	credential, err := s.issued()
	if err != nil {
		return err
	}
	return s.tc.POST("/credentials/verify", map[string]any{"credential": credential})
}

func (s *vcSteps) tamperWithClaim(ctx context.Context, claim string) error {
	credential, err := s.issued()
	if err != nil {
		return err
	}
	subject, ok := credential["credentialSubject"].(map[string]any)
	if !ok {
		return fmt.Errorf("credential has no credentialSubject")
	}
	current, ok := subject[claim].(bool)
	if !ok {
		return fmt.Errorf("claim %s is not a boolean", claim)
	}
	subject[claim] = !current
	return nil
}

func (s *vcSteps) resultShouldBeValid(ctx context.Context) error {
	valid, err := s.tc.GetResponseField("valid")
	if err != nil {
		return err
	}
	if valid != true {
		reason, _ := s.tc.GetResponseField("reason")
		return fmt.Errorf("expected a valid credential, got reason %v", reason)
	}
	return nil
}

func (s *vcSteps) resultShouldBeInvalid(ctx context.Context, reason string) error {
	valid, err := s.tc.GetResponseField("valid")
	if err != nil {
		return err
	}
	if valid != false {
		return fmt.Errorf("expected an invalid credential")
	}
	got, err := s.tc.GetResponseField("reason")
	if err != nil {
		return err
	}
	if got != reason {
		return fmt.Errorf("expected reason %s but got %v", reason, got)
	}
	return nil
}

func (s *vcSteps) credentialID() (string, error) {
	credential, err := s.issued()
	if err != nil {
		return "", err
	}
	id, ok := credential["id"].(string)
	if !ok || id == "" {
		return "", fmt.Errorf("issued credential has no id")
	}
	return id, nil
}

func (s *vcSteps) revokeIssued(ctx context.Context, reason string) error {
	id, err := s.credentialID()
	if err != nil {
		return err
	}
	return s.tc.POST("/credentials/revoke", map[string]any{
		"credentialId": id,
		"reason":       reason,
	})
}

func (s *vcSteps) checkStatus(ctx context.Context) error {
	id, err := s.credentialID()
	if err != nil {
		return err
	}
	return s.tc.GET("/credentials/status/" + url.PathEscape(id))
}

func (s *vcSteps) verifyPresentation(ctx context.Context) error {
	if len(s.issuedAll) == 0 {
		return fmt.Errorf("no credential was issued in this scenario")
	}
	return s.tc.POST("/credentials/verify/presentation", map[string]any{
		"presentation": map[string]any{"verifiableCredential": s.issuedAll},
	})
}

func (s *vcSteps) presentationShouldBe(ctx context.Context, outcome string) error {
	verified, err := s.tc.GetResponseField("verified")
	if err != nil {
		return err
	}
	if verified != (outcome == "verified") {
		return fmt.Errorf("expected presentation to be %s\nResponse: %s", outcome, string(s.tc.GetLastResponseBody()))
	}
	return nil
}
