package util

import (
	"sync"
	"time"

	"datasearch/config"
	"datasearch/logutils"

	jwt "github.com/golang-jwt/jwt/v5"
)

type (
	JWTClaims struct {
		UserID   uint   `json:"ui"`
		Username string `json:"un"`
		Role     string `json:"ro"`
		jwt.RegisteredClaims
	}
	JWTMessage struct {
		UserID   uint   `json:"userID"`
		Username string `json:"username"`
		Role     string `json:"role"` // Role in platform (e.g. user, admin)
	}
)

const RoleAdmin = "admin"

type TokenManager struct {
	secretKey      string
	accessTokenTTL int
}

var (
	once     sync.Once
	tokenMgr *TokenManager
)

func GetTokenMgr() *TokenManager {
	once.Do(func() {
		tokenMgr = &TokenManager{
			secretKey:      config.GetConfig().Auth.AccessTokenSecret,
			accessTokenTTL: 24,
		}
	})
	return tokenMgr
}

// CreateToken creates a new access token for the given message.
func (tm *TokenManager) CreateToken(msg *JWTMessage) (string, error) {
	expiresAt := time.Now().Add(time.Hour * time.Duration(tm.accessTokenTTL))

	claims := &JWTClaims{
		UserID:   msg.UserID,
		Username: msg.Username,
		Role:     msg.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(tm.secretKey))
	if err != nil {
		logutils.Log.Error(err)
		return "", err
	}
	return signed, nil
}

func (tm *TokenManager) CheckToken(requestToken string) (JWTMessage, error) {
	claims := JWTClaims{}
	_, err := jwt.ParseWithClaims(requestToken, &claims, func(_ *jwt.Token) (any, error) {
		return []byte(tm.secretKey), nil
	})
	return JWTMessage{
		UserID:   claims.UserID,
		Username: claims.Username,
		Role:     claims.Role,
	}, err
}
