// Package authn resolves the Authorization header of a request to a principal.
//
// Each Scheme either does not apply (nil result, nil error), authenticates, or fails with
// a typed error. A scheme that recognizes its prefix never falls through to anonymous.
package authn

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"go-auth-server/internal/model"
	"go-auth-server/pkg/apierror"
)

// Result is a successful authentication.
type Result struct {
	Principal model.Principal
	Scheme    string
	// Token is set for bearer authentication.
	Token *model.Token
}

type Scheme interface {
	// Name is the scheme token used in Authorization and WWW-Authenticate.
	Name() string
	Authenticate(r *http.Request) (*Result, error)
}

// CredentialStore is what the schemes need from the credential service.
type CredentialStore interface {
	AuthenticateUser(ctx context.Context, email string, password string) (*model.User, error)
	GetClient(ctx context.Context, id string) (*model.Client, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	ClientSigningKey(client *model.Client) ([]byte, error)
}

type Dispatcher struct {
	schemes []Scheme
	realm   string
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewDispatcher tries schemes in the given order.
func NewDispatcher(realm string, logger *slog.Logger, schemes ...Scheme) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if realm == "" {
		realm = apierror.DefaultRealm
	}
	return &Dispatcher{
		schemes: schemes,
		realm:   realm,
		logger:  logger,
		tracer:  otel.Tracer("go-auth-server/authn"),
	}
}

// Authenticate returns nil, nil for anonymous requests. Failures carry a WWW-Authenticate
// challenge for the scheme that rejected the request.
func (d *Dispatcher) Authenticate(r *http.Request) (*Result, error) {
	for _, scheme := range d.schemes {
		ctx, span := d.tracer.Start(r.Context(), "authn."+scheme.Name(),
			trace.WithAttributes(attribute.String("authn.scheme", scheme.Name())))
		req := r.WithContext(ctx)
		res, err := scheme.Authenticate(req)
		// schemes may replace the body after reading it
		r.Body = req.Body
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "authentication failed")
			span.End()

			d.logger.Warn("authentication failed", "scheme", scheme.Name(), "error", err.Error(), "path", r.URL.Path)
			if apiErr, ok := apierror.As(err); ok {
				return nil, apiErr.WithChallenge(scheme.Name(), d.realm)
			}
			return nil, err
		}
		span.End()

		if res != nil {
			res.Scheme = scheme.Name()
			return res, nil
		}
	}
	return nil, nil
}

// Challenge is the WWW-Authenticate value for requests that carried no credentials.
func (d *Dispatcher) Challenge() string {
	name := "Bearer"
	if len(d.schemes) > 0 {
		name = d.schemes[0].Name()
	}
	return apierror.Challenge(name, d.realm)
}

type contextKey struct{}

// NewContext stores an authentication result for downstream handlers.
func NewContext(ctx context.Context, res *Result) context.Context {
	return context.WithValue(ctx, contextKey{}, res)
}

// FromContext returns the result stored by NewContext, or nil for anonymous requests.
func FromContext(ctx context.Context) *Result {
	res, _ := ctx.Value(contextKey{}).(*Result)
	return res
}

// PrincipalFromContext is nil for anonymous requests.
func PrincipalFromContext(ctx context.Context) model.Principal {
	if res := FromContext(ctx); res != nil {
		return res.Principal
	}
	return nil
}

// schemeCredentials returns the part after "<scheme> " when the header uses scheme.
func schemeCredentials(r *http.Request, scheme string) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < len(scheme) || !strings.EqualFold(header[:len(scheme)], scheme) {
		return "", false
	}
	rest := header[len(scheme):]
	if rest != "" && rest[0] != ' ' {
		return "", false
	}
	return strings.TrimSpace(rest), true
}
