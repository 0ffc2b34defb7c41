package ethauth

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/goliatone/go-print"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/goliatone/go-ethauth/middleware/jwtware"
)

// AuthControllerRoutes holds the mount points of the auth endpoints
type AuthControllerRoutes struct {
	Login                 string
	ProviderCallback      string
	Register              string
	ForgotPassword        string
	ResetPassword         string
	EmailConfirmation     string
	SendEmailConfirmation string
	Connect               string
	Nonce                 string
	Me                    string
	Metrics               string
}

// AuthController exposes the auth flows as JSON endpoints
type AuthController struct {
	Debug    bool
	Logger   Logger
	Repo     RepositoryManager
	Policies PolicyStore
	Tokens   *TokenService
	Routes   *AuthControllerRoutes
	Gatherer prometheus.Gatherer

	Login                 *LoginHandler
	Register              *RegisterUserHandler
	ForgotPassword        *InitializePasswordResetHandler
	ResetPassword         *FinalizePasswordResetHandler
	EmailConfirmation     *EmailConfirmationHandler
	SendEmailConfirmation *SendEmailConfirmationHandler
	Connect               *ConnectHandler
}

type AuthControllerOption func(*AuthController) *AuthController

// WithControllerDebug dumps request and response payloads
func WithControllerDebug(debug bool) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		ac.Debug = debug
		return ac
	}
}

// WithControllerLogger sets the controller logger
func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		if logger != nil {
			ac.Logger = logger
		}
		return ac
	}
}

// WithMetricsGatherer exposes the given gatherer on the metrics route
func WithMetricsGatherer(gatherer prometheus.Gatherer) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		ac.Gatherer = gatherer
		return ac
	}
}

// WithRoutes overrides the default mount points
func WithRoutes(routes *AuthControllerRoutes) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		if routes != nil {
			ac.Routes = routes
		}
		return ac
	}
}

// WithCommandHandlers sets the flow handlers served by the controller.
// Nil handlers leave their routes unregistered.
func WithCommandHandlers(
	login *LoginHandler,
	register *RegisterUserHandler,
	forgot *InitializePasswordResetHandler,
	reset *FinalizePasswordResetHandler,
	confirm *EmailConfirmationHandler,
	resend *SendEmailConfirmationHandler,
	connect *ConnectHandler,
) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		ac.Login = login
		ac.Register = register
		ac.ForgotPassword = forgot
		ac.ResetPassword = reset
		ac.EmailConfirmation = confirm
		ac.SendEmailConfirmation = resend
		ac.Connect = connect
		return ac
	}
}

func NewAuthController(repo RepositoryManager, policies PolicyStore, tokens *TokenService, opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:   defLogger{},
		Repo:     repo,
		Policies: policies,
		Tokens:   tokens,
		Routes: &AuthControllerRoutes{
			Login:                 "/auth/local",
			ProviderCallback:      "/auth/:provider/callback",
			Register:              "/auth/local/register",
			ForgotPassword:        "/auth/forgot-password",
			ResetPassword:         "/auth/reset-password",
			EmailConfirmation:     "/auth/email-confirmation",
			SendEmailConfirmation: "/auth/send-email-confirmation",
			Connect:               "/connect/:provider",
			Nonce:                 "/auth/nonce/:address",
			Me:                    "/users/me",
			Metrics:               "/metrics",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in auth controller...")
	}

	if c.Policies == nil {
		panic("Missing PolicyStore in auth controller...")
	}

	if c.Tokens == nil {
		panic("Missing TokenService in auth controller...")
	}

	return c
}

// RegisterRoutes mounts the endpoints on app
func (a *AuthController) RegisterRoutes(app fiber.Router) {
	if a.Login != nil {
		app.Post(a.Routes.Login, a.LoginPost)
		app.Get(a.Routes.ProviderCallback, a.ProviderCallback)
	}

	if a.Register != nil {
		app.Post(a.Routes.Register, a.RegisterPost)
	}

	if a.ForgotPassword != nil {
		app.Post(a.Routes.ForgotPassword, a.ForgotPasswordPost)
	}

	if a.ResetPassword != nil {
		app.Post(a.Routes.ResetPassword, a.ResetPasswordPost)
	}

	if a.EmailConfirmation != nil {
		app.Get(a.Routes.EmailConfirmation, a.EmailConfirmationGet)
	}

	if a.SendEmailConfirmation != nil {
		app.Post(a.Routes.SendEmailConfirmation, a.SendEmailConfirmationPost)
	}

	if a.Connect != nil {
		app.Get(a.Routes.Connect, a.ConnectGet)
	}

	app.Get(a.Routes.Nonce, a.NonceGet)
	app.Get(a.Routes.Me, a.ProtectedRoute(), a.MeGet)

	if a.Gatherer != nil {
		app.Get(a.Routes.Metrics, adaptor.HTTPHandler(
			promhttp.HandlerFor(a.Gatherer, promhttp.HandlerOpts{}),
		))
	}
}

// ProtectedRoute validates the bearer token and stores its claims under
// ClaimsLocalsKey.
func (a *AuthController) ProtectedRoute() fiber.Handler {
	return jwtware.New(jwtware.Config{
		ContextKey: ClaimsLocalsKey,
		TokenValidator: jwtware.ValidatorFunc(func(raw string) (jwtware.Claims, error) {
			claims, err := a.Tokens.Validate(raw)
			if err != nil {
				return nil, err
			}
			return claims, nil
		}),
		ErrorHandler: writeUnauthorized,
		ContextEnricher: func(ctx context.Context, claims jwtware.Claims) context.Context {
			if jc, ok := claims.(*JWTClaims); ok {
				return WithClaimsContext(ctx, jc)
			}
			return ctx
		},
	})
}

// snapshot takes the policy once per request
func (a *AuthController) snapshot(c *fiber.Ctx) (*Policy, error) {
	return resolvePolicy(c.UserContext(), a.Policies, nil)
}

func (a *AuthController) bind(c *fiber.Ctx, payload any) error {
	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("auth parse payload failed", "path", c.Path(), "error", err)
		return NewError(KindMissingField, IDParamsProvide, "Incorrect params provided.")
	}

	if a.Debug {
		fmt.Println("======= AUTH " + c.Path() + " ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("=========================")
	}

	return nil
}

func (a *AuthController) fail(c *fiber.Ctx, err error) error {
	if KindOf(err) == KindDownstreamFailure {
		a.Logger.Error("auth request failed", "path", c.Path(), "error", err)
	} else {
		a.Logger.Debug("auth request rejected", "path", c.Path(), "kind", KindOf(err), "id", ErrorID(err))
	}
	return WriteError(c, err)
}

func (a *AuthController) LoginPost(c *fiber.Ctx) error {
	payload := new(LoginRequest)
	if err := a.bind(c, payload); err != nil {
		return a.fail(c, err)
	}

	policy, err := a.snapshot(c)
	if err != nil {
		return a.fail(c, err)
	}

	var res *AuthResponse
	err = a.Login.Execute(c.UserContext(), LoginMessage{
		Provider:   ProviderLocal,
		Identifier: payload.Identifier,
		Signature:  payload.Password,
		Policy:     policy,
		OnResponse: func(resp *AuthResponse) { res = resp },
	})
	if err != nil {
		return a.fail(c, err)
	}

	return c.JSON(res)
}

func (a *AuthController) ProviderCallback(c *fiber.Ctx) error {
	policy, err := a.snapshot(c)
	if err != nil {
		return a.fail(c, err)
	}

	var res *AuthResponse
	err = a.Login.Execute(c.UserContext(), LoginMessage{
		Provider:   c.Params("provider"),
		Query:      c.Queries(),
		Policy:     policy,
		OnResponse: func(resp *AuthResponse) { res = resp },
	})
	if err != nil {
		return a.fail(c, err)
	}

	return c.JSON(res)
}

func (a *AuthController) RegisterPost(c *fiber.Ctx) error {
	payload := new(RegisterRequest)
	if err := a.bind(c, payload); err != nil {
		return a.fail(c, err)
	}

	policy, err := a.snapshot(c)
	if err != nil {
		return a.fail(c, err)
	}

	var res *AuthResponse
	msg := payload.Message()
	msg.Policy = policy
	msg.OnResponse = func(resp *AuthResponse) { res = resp }

	if err := a.Register.Execute(c.UserContext(), msg); err != nil {
		return a.fail(c, err)
	}

	if a.Debug {
		fmt.Println(print.MaybePrettyJSON(res))
	}

	return c.JSON(res)
}

func (a *AuthController) ForgotPasswordPost(c *fiber.Ctx) error {
	payload := new(ForgotPasswordRequest)
	if err := a.bind(c, payload); err != nil {
		return a.fail(c, err)
	}

	policy, err := a.snapshot(c)
	if err != nil {
		return a.fail(c, err)
	}

	var res *InitializePasswordResetResponse
	err = a.ForgotPassword.Execute(c.UserContext(), InitializePasswordResetMessage{
		Email:      payload.Email,
		Policy:     policy,
		OnResponse: func(resp *InitializePasswordResetResponse) { res = resp },
	})
	if err != nil {
		return a.fail(c, err)
	}

	return c.JSON(res)
}

func (a *AuthController) ResetPasswordPost(c *fiber.Ctx) error {
	payload := new(ResetPasswordRequest)
	if err := a.bind(c, payload); err != nil {
		return a.fail(c, err)
	}

	var res *AuthResponse
	err := a.ResetPassword.Execute(c.UserContext(), FinalizePasswordResetMessage{
		Code:                 payload.Code,
		Password:             payload.Password,
		PasswordConfirmation: payload.PasswordConfirmation,
		OnResponse:           func(resp *AuthResponse) { res = resp },
	})
	if err != nil {
		return a.fail(c, err)
	}

	return c.JSON(res)
}

func (a *AuthController) EmailConfirmationGet(c *fiber.Ctx) error {
	policy, err := a.snapshot(c)
	if err != nil {
		return a.fail(c, err)
	}

	var res *EmailConfirmationResponse
	err = a.EmailConfirmation.Execute(c.UserContext(), EmailConfirmationMessage{
		Token:      c.Query("confirmation"),
		ReturnUser: c.QueryBool("returnUser", false),
		Policy:     policy,
		OnResponse: func(resp *EmailConfirmationResponse) { res = resp },
	})
	if err != nil {
		return a.fail(c, err)
	}

	if res.Auth != nil {
		return c.JSON(res.Auth)
	}

	return c.Redirect(res.Redirect, fiber.StatusFound)
}

func (a *AuthController) SendEmailConfirmationPost(c *fiber.Ctx) error {
	payload := new(SendEmailConfirmationRequest)
	if err := a.bind(c, payload); err != nil {
		return a.fail(c, err)
	}

	policy, err := a.snapshot(c)
	if err != nil {
		return a.fail(c, err)
	}

	var res *SendEmailConfirmationResponse
	err = a.SendEmailConfirmation.Execute(c.UserContext(), SendEmailConfirmationMessage{
		Email:      payload.Email,
		Policy:     policy,
		OnResponse: func(resp *SendEmailConfirmationResponse) { res = resp },
	})
	if err != nil {
		return a.fail(c, err)
	}

	return c.JSON(res)
}

func (a *AuthController) ConnectGet(c *fiber.Ctx) error {
	policy, err := a.snapshot(c)
	if err != nil {
		return a.fail(c, err)
	}

	var redirect string
	err = a.Connect.Execute(c.UserContext(), ConnectMessage{
		Provider:   c.Params("provider"),
		Callback:   c.Query("callback"),
		Policy:     policy,
		OnResponse: func(url string) { redirect = url },
	})
	if err != nil {
		return a.fail(c, err)
	}

	return c.Redirect(redirect, fiber.StatusFound)
}

// NonceResponse carries the value a wallet has to sign next
type NonceResponse struct {
	Nonce   int64  `json:"nonce"`
	Message string `json:"message"`
}

func (a *AuthController) NonceGet(c *fiber.Ctx) error {
	address := NormalizeAddress(c.Params("address"))
	if address == "" {
		return a.fail(c, NewFieldError(KindMissingField, IDAddressProvide,
			"Please provide your Ethereum Address.", "ethereumAddress"))
	}

	user, err := a.Repo.Users().FindOne(c.UserContext(), UserQuery{
		EthereumAddress: address,
		Provider:        ProviderLocal,
	})
	if err != nil {
		if IsNotFound(err) {
			return a.fail(c, errAccountNotFound())
		}
		return a.fail(c, WrapDownstream(err, IDInternal, "failed to look up nonce"))
	}

	return c.JSON(NonceResponse{
		Nonce:   user.Nonce,
		Message: ChallengeMessage(user.Nonce),
	})
}

func (a *AuthController) MeGet(c *fiber.Ctx) error {
	claims, ok := GetFiberClaims(c, ClaimsLocalsKey)
	if !ok {
		return writeUnauthorized(c, ErrTokenMalformed)
	}

	id, err := uuid.Parse(claims.UserID())
	if err != nil {
		return writeUnauthorized(c, ErrTokenMalformed)
	}

	user, err := a.Repo.Users().FindOne(c.UserContext(), UserQuery{ID: id})
	if err != nil {
		if IsNotFound(err) {
			return a.fail(c, NewError(KindNotFound, IDUserNotExist, "User not found."))
		}
		return a.fail(c, WrapDownstream(err, IDInternal, "failed to load user"))
	}

	return c.JSON(user.Sanitize())
}
