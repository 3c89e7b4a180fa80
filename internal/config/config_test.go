package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "secret")
	t.Setenv("APP_PERSISTENCE", "memory")
	t.Setenv("FACE_VERIFY_DISABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7*time.Hour+45*time.Minute, cfg.Attendance.InWindowStart)
	assert.Equal(t, 8*time.Hour+15*time.Minute, cfg.Attendance.InWindowEnd)
	assert.Equal(t, 18*time.Hour, cfg.Attendance.OutValidFrom)
	assert.Equal(t, 1000.0, cfg.Attendance.DefaultRadiusMeters)
	assert.Equal(t, 10*time.Minute, cfg.Attendance.MaxCaptureSkew)
	assert.Equal(t, "local", cfg.Lock.Backend)
	assert.Equal(t, "localhost:6379", cfg.Lock.RedisAddr)
	assert.True(t, cfg.Face.Disabled)
	require.NotNil(t, cfg.Attendance.Location)
}

func TestLoad_InvalidClock(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "secret")
	t.Setenv("APP_PERSISTENCE", "memory")
	t.Setenv("FACE_VERIFY_DISABLED", "true")
	t.Setenv("ATTENDANCE_IN_WINDOW_START", "7.45")

	_, err := Load()
	assert.ErrorContains(t, err, "ATTENDANCE_IN_WINDOW_START")
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			JWT:      JWTConfig{Secret: "secret"},
			App:      AppConfig{Persistence: "postgres"},
			Database: DatabaseConfig{Password: "pw"},
			Attendance: AttendanceConfig{
				InWindowStart:       7 * time.Hour,
				InWindowEnd:         8 * time.Hour,
				DefaultRadiusMeters: 1000,
			},
			Face: FaceConfig{VerifyURL: "http://face.internal/verify"},
			Lock: LockConfig{Backend: "local"},
		}
	}

	t.Run("valid", func(t *testing.T) {
		cfg := base()
		assert.NoError(t, cfg.Validate())
	})

	t.Run("missing secret", func(t *testing.T) {
		cfg := base()
		cfg.JWT.Secret = ""
		assert.ErrorContains(t, cfg.Validate(), "JWT_SECRET_KEY")
	})

	t.Run("postgres without password", func(t *testing.T) {
		cfg := base()
		cfg.Database.Password = ""
		assert.ErrorContains(t, cfg.Validate(), "DB_PASSWORD")
	})

	t.Run("inverted in window", func(t *testing.T) {
		cfg := base()
		cfg.Attendance.InWindowEnd = 6 * time.Hour
		assert.Error(t, cfg.Validate())
	})

	t.Run("face verification unconfigured", func(t *testing.T) {
		cfg := base()
		cfg.Face.VerifyURL = ""
		assert.ErrorContains(t, cfg.Validate(), "FACE_VERIFY_URL")
	})

	t.Run("face verification disabled outside production", func(t *testing.T) {
		cfg := base()
		cfg.Face = FaceConfig{Disabled: true}
		cfg.App.Env = "development"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("face verification disabled in production", func(t *testing.T) {
		cfg := base()
		cfg.Face.Disabled = true
		cfg.App.Env = "production"
		assert.ErrorContains(t, cfg.Validate(), "FACE_VERIFY_DISABLED")
	})

	t.Run("unknown lock backend", func(t *testing.T) {
		cfg := base()
		cfg.Lock.Backend = "etcd"
		assert.ErrorContains(t, cfg.Validate(), "LOCK_BACKEND")
	})
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, splitList(" http://a.test, ,http://b.test "))
	assert.Nil(t, splitList(""))
}
