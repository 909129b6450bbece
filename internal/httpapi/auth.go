package httpapi

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"mizpos/terminal/internal/domain"
)

type AuthManager struct {
	mu         sync.RWMutex
	secret     []byte
	tokenTTL   time.Duration
	staffStore StaffStore
	staff      map[string]credential
}

type StaffStore interface {
	CreateStaff(ctx context.Context, account domain.StaffAccount) error
	ListStaff(ctx context.Context) ([]domain.StaffAccount, error)
	UpdateStaffPIN(ctx context.Context, staffNumber string, pin string) error
}

type credential struct {
	pin     string
	role    string
	active  bool
	created time.Time
}

type posCustomClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, staffStore StaffStore) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 12 * time.Hour
	}

	manager := &AuthManager{
		secret:     []byte(secret),
		tokenTTL:   tokenTTL,
		staffStore: staffStore,
		staff:      make(map[string]credential),
	}
	// context.Background() is appropriate here because this is a startup
	// operation that runs before any request context exists.
	manager.bootstrapStaff(context.Background())
	return manager
}

func (a *AuthManager) Login(req domain.LoginRequest) (domain.LoginResponse, error) {
	// Reload on every login to pick up staff added outside this process.
	// Acceptable for a single-terminal deployment.
	a.bootstrapStaff(context.Background())
	staffNumber := strings.TrimSpace(req.StaffNumber)
	a.mu.RLock()
	cred, ok := a.staff[staffNumber]
	a.mu.RUnlock()
	if !ok {
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}

	if !verifyPIN(cred.pin, req.PIN) {
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}
	if !cred.active {
		return domain.LoginResponse{}, errors.New("account is inactive")
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(staffNumber, cred.role, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		Role:        cred.role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &posCustomClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{StaffNumber: sub, Role: claims.Role}, nil
}

func (a *AuthManager) sign(staffNumber, role string, expiresAt time.Time) (string, error) {
	claims := posCustomClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   staffNumber,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "mizpos-terminal",
		},
		Role: role,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *AuthManager) CreateStaff(req domain.StaffCreateRequest) (domain.StaffAccount, error) {
	// context.Background() is correct here: CreateStaff is an admin operation
	// that does not carry a request context through the AuthManager API.
	a.bootstrapStaff(context.Background())
	staffNumber := strings.TrimSpace(req.StaffNumber)
	if !isStaffNumber(staffNumber) {
		return domain.StaffAccount{}, fmt.Errorf("staff number must be 4-10 digits")
	}
	pin := strings.TrimSpace(req.PIN)
	if len(pin) < 4 {
		return domain.StaffAccount{}, fmt.Errorf("pin must be at least 4 characters")
	}
	role := req.Role
	if role != "admin" {
		role = "cashier"
	}

	a.mu.RLock()
	_, exists := a.staff[staffNumber]
	a.mu.RUnlock()
	if exists {
		return domain.StaffAccount{}, fmt.Errorf("staff number already exists")
	}

	now := time.Now().UTC()
	pinHash, err := hashPIN(pin)
	if err != nil {
		return domain.StaffAccount{}, fmt.Errorf("failed to hash pin")
	}

	if a.staffStore != nil {
		err := a.staffStore.CreateStaff(context.Background(), domain.StaffAccount{
			StaffNumber: staffNumber,
			PIN:         pinHash,
			Role:        role,
			Active:      true,
			CreatedAt:   now,
		})
		if err != nil {
			return domain.StaffAccount{}, err
		}
	}

	a.mu.Lock()
	a.staff[staffNumber] = credential{
		pin:     pinHash,
		role:    role,
		active:  true,
		created: now,
	}
	a.mu.Unlock()

	return domain.StaffAccount{
		StaffNumber: staffNumber,
		Role:        role,
		Active:      true,
		CreatedAt:   now,
	}, nil
}

func (a *AuthManager) ListStaff() []domain.StaffAccount {
	a.bootstrapStaff(context.Background())
	a.mu.RLock()
	result := make([]domain.StaffAccount, 0, len(a.staff))
	for staffNumber, cred := range a.staff {
		result = append(result, domain.StaffAccount{
			StaffNumber: staffNumber,
			Role:        cred.role,
			Active:      cred.active,
			CreatedAt:   cred.created,
		})
	}
	a.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool {
		return result[i].StaffNumber < result[j].StaffNumber
	})
	return result
}

// bootstrapStaff loads staff accounts from the store into the in-memory
// credential cache. Legacy plain-text PINs are upgraded to bcrypt hashes in
// the store as a side effect.
func (a *AuthManager) bootstrapStaff(ctx context.Context) {
	if a.staffStore == nil {
		return
	}

	accounts, err := a.staffStore.ListStaff(ctx)
	if err != nil || len(accounts) == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, account := range accounts {
		staffNumber := strings.TrimSpace(account.StaffNumber)
		if staffNumber == "" {
			continue
		}
		pin := account.PIN
		if !isPINHash(pin) {
			hashed, err := hashPIN(pin)
			if err == nil {
				pin = hashed
				_ = a.staffStore.UpdateStaffPIN(ctx, staffNumber, hashed)
			}
		}
		a.staff[staffNumber] = credential{
			pin:     pin,
			role:    account.Role,
			active:  account.Active,
			created: account.CreatedAt,
		}
	}
}

func isStaffNumber(value string) bool {
	if len(value) < 4 || len(value) > 10 {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func verifyPIN(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPINHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPIN(pin string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPINHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
