package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/sma-approval-api/pkg/config"
)

func TestDSNFromFields(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{
		Host:           "db",
		Port:           5432,
		User:           "school",
		Password:       "it's secret",
		Name:           "school_admin",
		SSLMode:        "disable",
		ConnectTimeout: 3 * time.Second,
	})

	assert.Contains(t, dsn, "host=db port=5432 user=school")
	assert.Contains(t, dsn, `password='it\'s secret'`)
	assert.Contains(t, dsn, "application_name=school-admin-api")
	assert.Contains(t, dsn, "connect_timeout=3")
}

func TestDSNPrefersURL(t *testing.T) {
	url := "postgres://school:pw@db:5432/school_admin?sslmode=disable"

	assert.Equal(t, url, DSN(config.DatabaseConfig{URL: url, Host: "ignored"}))
}

func TestDSNQuotesEmptyPassword(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", User: "school", Name: "x", SSLMode: "disable"})

	assert.Contains(t, dsn, "password=''")
	assert.NotContains(t, dsn, "connect_timeout")
}
