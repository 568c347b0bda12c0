package main

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"gorm.io/gorm"
)

const SigningKeyID = "client-signing"

type Key struct {
	ID        string `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
	Key       string
}

func (s *Store) GetKey(id string) (jwk.Key, error) {
	var key Key
	err := s.DB.Where("id = ?", id).First(&key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.GenerateKey(id)
	}
	if err != nil {
		return nil, err
	}
	return jwk.ParseKey([]byte(key.Key))
}

// GenerateKey creates and stores an RSA signing key. The kid is the key's
// RFC 7638 thumbprint.
func (s *Store) GenerateKey(id string) (jwk.Key, error) {
	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate rsa key: %w", err)
	}
	k, err := jwk.FromRaw(raw)
	if err != nil {
		return nil, err
	}
	thumbprint, err := k.Thumbprint(crypto.SHA256)
	if err != nil {
		return nil, err
	}
	err = k.Set(jwk.KeyIDKey, base64.RawURLEncoding.EncodeToString(thumbprint))
	if err != nil {
		return nil, err
	}
	err = k.Set(jwk.AlgorithmKey, jwa.RS256)
	if err != nil {
		return nil, err
	}
	err = k.Set(jwk.KeyUsageKey, jwk.ForSignature)
	if err != nil {
		return nil, err
	}
	bs, err := json.Marshal(k)
	if err != nil {
		return nil, err
	}
	err = s.DB.Create(&Key{
		ID:  id,
		Key: string(bs),
	}).Error
	if err != nil {
		return nil, err
	}
	s.Logger.Info("generated key", "id", id, "kid", k.KeyID())
	return k, nil
}

// PublicJWKS is the key set to register with the OpenID Provider.
func PublicJWKS(keys ...jwk.Key) (jwk.Set, error) {
	set := jwk.NewSet()
	for _, k := range keys {
		pub, err := jwk.PublicKeyOf(k)
		if err != nil {
			return nil, fmt.Errorf("failed to derive public key %s: %w", k.KeyID(), err)
		}
		if err := set.AddKey(pub); err != nil {
			return nil, err
		}
	}
	return set, nil
}
