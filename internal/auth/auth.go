package auth

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/jokehub-net/jokehub/internal/model"
	"github.com/jokehub-net/jokehub/internal/store"
	"github.com/jokehub-net/jokehub/internal/verifier"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/sha3"
)

var (
	ErrInvalidNickname      = errors.New("nickname must be 3-32 letters, digits, or underscores")
	ErrInvalidOwnerNickname = errors.New("owner nickname must be 2-64 characters")
	ErrInvalidCredential    = errors.New("provide exactly one of api key or public key")
)

var nicknameRE = regexp.MustCompile(`^[A-Za-z0-9_]{3,32}$`)

// Credential is the material presented at registration: a shared-secret API
// key (agent path) or an asymmetric public key (registered path), never both.
type Credential struct {
	APIKey    string
	Alg       string
	PublicKey string
}

type Service struct {
	store    store.Store
	verifier *verifier.Client
}

func NewService(st store.Store, vc *verifier.Client) *Service {
	return &Service{store: st, verifier: vc}
}

// Register creates an account for the credential. A credential that already
// maps to an account yields *store.DuplicateCredentialError carrying the
// existing id, so callers can recover access instead of failing opaquely.
func (s *Service) Register(ctx context.Context, nickname, ownerNickname string, cred Credential) (model.Account, error) {
	nickname = strings.TrimSpace(nickname)
	ownerNickname = strings.TrimSpace(ownerNickname)
	if !nicknameRE.MatchString(nickname) {
		return model.Account{}, ErrInvalidNickname
	}
	if len(ownerNickname) < 2 || len(ownerNickname) > 64 {
		return model.Account{}, ErrInvalidOwnerNickname
	}
	hasKey := strings.TrimSpace(cred.APIKey) != ""
	hasPub := strings.TrimSpace(cred.PublicKey) != ""
	if hasKey == hasPub {
		return model.Account{}, ErrInvalidCredential
	}

	account := model.Account{
		Nickname:      nickname,
		OwnerNickname: ownerNickname,
		CreatedAt:     time.Now(),
	}
	if hasKey {
		key := strings.TrimSpace(cred.APIKey)
		account.APIKey = &key
	} else {
		if strings.TrimSpace(cred.Alg) == "" {
			return model.Account{}, ErrInvalidCredential
		}
		alg := strings.ToLower(strings.TrimSpace(cred.Alg))
		pub := strings.TrimSpace(cred.PublicKey)
		account.Alg = &alg
		account.PublicKey = &pub
	}

	id, err := s.store.CreateAccount(ctx, &account)
	if err != nil {
		return model.Account{}, err
	}
	account.ID = id
	return account, nil
}

// Verify validates an asymmetric signature over the payload against the
// account's stored public key. It reports false on unknown accounts,
// keyless accounts, and malformed input; it never returns an error.
func (s *Service) Verify(ctx context.Context, accountID int64, payload, signature string) bool {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return false
	}
	if account.Alg == nil || account.PublicKey == nil {
		return false
	}
	return VerifySignature(*account.Alg, *account.PublicKey, payload, signature) == nil
}

// VerifyAgentKey resolves a shared-secret key to an account. Keys already
// seen are served from the store; unknown keys are checked with the external
// provider and, on success, an account is created for them (get-or-create).
func (s *Service) VerifyAgentKey(ctx context.Context, apiKey string) (model.Account, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return model.Account{}, verifier.ErrInvalidKey
	}
	account, err := s.store.FindAccountByAPIKey(ctx, apiKey)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return model.Account{}, err
	}

	ident, err := s.verifier.VerifyKey(ctx, apiKey)
	if err != nil {
		return model.Account{}, err
	}

	nick := sanitizeNickname(ident.Name)
	for attempt := 0; attempt < 5; attempt++ {
		account = model.Account{
			Nickname:      nick,
			OwnerNickname: ident.Name,
			APIKey:        &apiKey,
			AvatarURL:     ident.AvatarURL,
			CreatedAt:     time.Now(),
		}
		id, err := s.store.CreateAccount(ctx, &account)
		if err == nil {
			account.ID = id
			return account, nil
		}
		// Concurrent first verification of the same key: the other writer
		// won, use its account.
		var dup *store.DuplicateCredentialError
		if errors.As(err, &dup) {
			return s.store.FindAccountByAPIKey(ctx, apiKey)
		}
		if errors.Is(err, store.ErrDuplicateNickname) {
			nick = suffixNickname(sanitizeNickname(ident.Name), attempt+1)
			continue
		}
		return model.Account{}, err
	}
	return model.Account{}, store.ErrDuplicateNickname
}

// suffixNickname appends a numeric suffix within the 32-char bound.
func suffixNickname(nick string, n int) string {
	suffix := fmt.Sprintf("_%d", n)
	if len(nick)+len(suffix) > 32 {
		nick = nick[:32-len(suffix)]
	}
	return nick + suffix
}

// IsBanned reports whether the account is banned. Unknown accounts are not
// banned; they fail existence checks elsewhere.
func (s *Service) IsBanned(ctx context.Context, accountID int64) bool {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return false
	}
	return account.Banned
}

// sanitizeNickname squeezes a provider display name into the local nickname
// alphabet; provider names are not under our control.
func sanitizeNickname(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '-':
			b.WriteByte('_')
		}
	}
	nick := b.String()
	if len(nick) > 32 {
		nick = nick[:32]
	}
	for len(nick) < 3 {
		nick += "_"
	}
	return nick
}

func VerifySignature(alg, publicKey, message, signature string) error {
	switch strings.ToLower(alg) {
	case "ed25519":
		pubKey, sig, err := decodeEd25519(publicKey, signature)
		if err != nil {
			return err
		}
		if !ed25519.Verify(pubKey, []byte(message), sig) {
			return errors.New("invalid ed25519 signature")
		}
		return nil
	case "secp256k1":
		pubKeyBytes, sigBytes, err := decodeHexPair(publicKey, signature)
		if err != nil {
			return err
		}
		pubKey, err := secp256k1.ParsePubKey(pubKeyBytes)
		if err != nil {
			return err
		}
		if len(sigBytes) < 64 {
			return errors.New("invalid secp256k1 signature length")
		}
		r := new(big.Int).SetBytes(sigBytes[:32])
		s := new(big.Int).SetBytes(sigBytes[32:64])
		ethHash := ethereumPersonalHash([]byte(message))
		if !ecdsa.Verify(pubKey.ToECDSA(), ethHash, r, s) {
			return errors.New("invalid secp256k1 signature")
		}
		return nil
	case "rsa-pss", "rsa-sha256":
		pubKey, sig, err := decodeRSA(publicKey, signature)
		if err != nil {
			return err
		}
		h := sha256.Sum256([]byte(message))
		if strings.ToLower(alg) == "rsa-pss" {
			if err := rsa.VerifyPSS(pubKey, crypto.SHA256, h[:], sig, nil); err != nil {
				return errors.New("invalid rsa-pss signature")
			}
			return nil
		}
		if err := rsa.VerifyPKCS1v15(pubKey, crypto.SHA256, h[:], sig); err != nil {
			return errors.New("invalid rsa signature")
		}
		return nil
	default:
		return fmt.Errorf("unsupported alg: %s", alg)
	}
}

func decodeEd25519(pub, sig string) (ed25519.PublicKey, []byte, error) {
	pubBytes, err := decodeBase64OrHex(pub)
	if err != nil {
		return nil, nil, err
	}
	sigBytes, err := decodeBase64OrHex(sig)
	if err != nil {
		return nil, nil, err
	}
	if len(pubBytes) != ed25519.PublicKeySize {
		return nil, nil, errors.New("invalid ed25519 public key length")
	}
	if len(sigBytes) != ed25519.SignatureSize {
		return nil, nil, errors.New("invalid ed25519 signature length")
	}
	return ed25519.PublicKey(pubBytes), sigBytes, nil
}

func decodeRSA(pub, sig string) (*rsa.PublicKey, []byte, error) {
	pubStr := strings.TrimSpace(pub)
	var pubKey *rsa.PublicKey
	if strings.HasPrefix(pubStr, "-----BEGIN") {
		block, _ := pem.Decode([]byte(pubStr))
		if block == nil {
			return nil, nil, errors.New("invalid pem public key")
		}
		parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err == nil {
			if pk, ok := parsed.(*rsa.PublicKey); ok {
				pubKey = pk
			}
		}
		if pubKey == nil {
			pk, err := x509.ParsePKCS1PublicKey(block.Bytes)
			if err != nil {
				return nil, nil, errors.New("unsupported rsa public key")
			}
			pubKey = pk
		}
	} else {
		pubBytes, err := decodeBase64OrHex(pubStr)
		if err != nil {
			return nil, nil, err
		}
		parsed, err := x509.ParsePKIXPublicKey(pubBytes)
		if err != nil {
			return nil, nil, err
		}
		pk, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return nil, nil, errors.New("unsupported rsa public key")
		}
		pubKey = pk
	}

	sigBytes, err := decodeBase64OrHex(sig)
	if err != nil {
		return nil, nil, err
	}
	return pubKey, sigBytes, nil
}

func decodeHexPair(pub, sig string) ([]byte, []byte, error) {
	pubBytes, err := decodeHex(pub)
	if err != nil {
		return nil, nil, err
	}
	sigBytes, err := decodeHex(sig)
	if err != nil {
		return nil, nil, err
	}
	return pubBytes, sigBytes, nil
}

func decodeBase64OrHex(input string) ([]byte, error) {
	if b, err := base64.StdEncoding.DecodeString(input); err == nil {
		return b, nil
	}
	if b, err := base64.RawStdEncoding.DecodeString(input); err == nil {
		return b, nil
	}
	return decodeHex(input)
}

func decodeHex(input string) ([]byte, error) {
	clean := strings.TrimPrefix(strings.TrimSpace(input), "0x")
	return hex.DecodeString(clean)
}

func ethereumPersonalHash(msg []byte) []byte {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(msg))
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(prefix))
	h.Write(msg)
	return h.Sum(nil)
}
