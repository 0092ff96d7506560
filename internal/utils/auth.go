package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DeviceTokenTTL is the lifetime of a device bearer token
const DeviceTokenTTL = time.Hour

// GenerateDeviceToken signs a short-lived bearer token identifying this device
func GenerateDeviceToken(deviceID, secret string) (string, error) {
	claims := jwt.MapClaims{
		"device_id": deviceID,
		"type":      "device",
		"iat":       time.Now().Unix(),
		"exp":       time.Now().Add(DeviceTokenTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateToken parses and validates a token
func ValidateToken(tokenString string, secret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}

// DeviceTokenSource caches a device token and renews it shortly before expiry
type DeviceTokenSource struct {
	deviceID string
	secret   string
	token    string
	expires  time.Time
}

// NewDeviceTokenSource creates a token source for deviceID
func NewDeviceTokenSource(deviceID, secret string) *DeviceTokenSource {
	return &DeviceTokenSource{deviceID: deviceID, secret: secret}
}

// Token returns a valid bearer token. It is not safe for concurrent use;
// drains are serial.
func (s *DeviceTokenSource) Token() (string, error) {
	if s.token != "" && time.Until(s.expires) > time.Minute {
		return s.token, nil
	}
	token, err := GenerateDeviceToken(s.deviceID, s.secret)
	if err != nil {
		return "", err
	}
	s.token = token
	s.expires = time.Now().Add(DeviceTokenTTL)
	return token, nil
}
