package common

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"os"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/labstack/gommon/random"
	"golang.org/x/crypto/pbkdf2"
)

const (
	NA       = "N/A"
	ENABLED  = "enabled"
	DISABLED = "disabled"
)

var snowflakeNode *snowflake.Node

func init() {
	var err error
	snowflakeNode, err = snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
}

// UUIDint64 returns a time-ordered unique int64 id.
func UUIDint64() int64 {
	return snowflakeNode.Generate().Int64()
}

// UUID returns the string form of a snowflake id.
func UUID() string {
	return snowflakeNode.Generate().String()
}

const pbkdf2Iterations = 4096

// Pbkdf2HashWithSalt derives a hex-encoded PBKDF2-SHA256 hash of src.
func Pbkdf2HashWithSalt(src, salt string) string {
	key := pbkdf2.Key([]byte(src), []byte(salt), pbkdf2Iterations, sha256.Size, sha256.New)
	return hex.EncodeToString(key)
}

// GetSecretSalt returns the hashing salt, overridable by environment for
// installations that require their own.
func GetSecretSalt() string {
	if s := os.Getenv("TINYPOS_SECRET_SALT"); s != "" {
		return s
	}
	return "tinypos-0a498f30"
}

// RandomString returns an alphanumeric string of length n.
func RandomString(n uint8) string {
	return random.String(n)
}

func Base64Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

func Base64Decode(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(strings.TrimSpace(s))
}

// IsEmptyOrNA reports whether a value carries no information.
func IsEmptyOrNA(val string) bool {
	v := strings.TrimSpace(val)
	return v == "" || strings.EqualFold(v, NA)
}
