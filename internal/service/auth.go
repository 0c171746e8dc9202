package service

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pooly/backend/internal/client"
	"github.com/pooly/backend/internal/dto"
	"github.com/pooly/backend/internal/model"
)

// AuthService issues credentials and decides who may act. Its checks are pure:
// they never touch storage and run before any mutation or publish.
type AuthService interface {
	Issue(eventCode string, admin bool) (dto.Credential, error)
	Authenticate(token string) (dto.Identity, error)
	AuthorizeEvent(identity dto.Identity, eventCode string) error
	AuthorizeQuestion(identity dto.Identity, question model.Question) error
	AuthorizeDelete(identity dto.Identity, question model.Question) error
}

type authService struct {
	authClient          client.AuthClient
	tokenExpireVerifier client.TokenExpireVerifier
}

func newAuthService(authClient client.AuthClient, verifier client.TokenExpireVerifier) AuthService {
	return &authService{authClient: authClient, tokenExpireVerifier: verifier}
}

// Issue mints a fresh anonymous participant identity bound to eventCode.
func (a *authService) Issue(eventCode string, admin bool) (dto.Credential, error) {
	identity := dto.Identity{
		EventCode:     eventCode,
		ParticipantID: uuid.New(),
		IsAdmin:       admin,
	}

	token, err := a.authClient.Sign(identity)
	if err != nil {
		return dto.Credential{}, fmt.Errorf("sign credential: %w", err)
	}

	return dto.Credential{Token: token, Identity: identity}, nil
}

func (a *authService) Authenticate(token string) (dto.Identity, error) {
	if token == "" {
		return dto.Identity{}, fmt.Errorf("%w: missing credential", dto.ErrUnauthenticated)
	}

	identity, err := a.authClient.Verify(token)
	if err != nil {
		if a.tokenExpireVerifier(err) {
			return dto.Identity{}, fmt.Errorf("%w: credential expired", dto.ErrUnauthenticated)
		}
		return dto.Identity{}, fmt.Errorf("%w: %v", dto.ErrUnauthenticated, err)
	}

	return identity, nil
}

func (a *authService) AuthorizeEvent(identity dto.Identity, eventCode string) error {
	if identity.EventCode != eventCode {
		return fmt.Errorf("%w: credential is not valid for event %s", dto.ErrForbidden, eventCode)
	}
	return nil
}

// AuthorizeQuestion hides questions of other events behind NotFound so that a
// participant cannot probe which question ids exist elsewhere.
func (a *authService) AuthorizeQuestion(identity dto.Identity, question model.Question) error {
	if identity.EventCode != question.EventCode {
		return fmt.Errorf("%w: question %s", dto.ErrNotFound, question.ID)
	}
	return nil
}

// AuthorizeDelete allows only the question's owner to delete it; the admin
// flag does not override ownership.
func (a *authService) AuthorizeDelete(identity dto.Identity, question model.Question) error {
	if err := a.AuthorizeQuestion(identity, question); err != nil {
		return err
	}
	if identity.ParticipantID != question.OwnerID {
		return fmt.Errorf("%w: only the author may delete question %s", dto.ErrForbidden, question.ID)
	}
	return nil
}
