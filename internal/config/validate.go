package config

import (
	"errors"
	"fmt"
	"net/url"
)

// ValidationError reports an invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func required(field, value string) error {
	if value == "" {
		return &ValidationError{Field: field, Message: "is required"}
	}
	return nil
}

func validURL(field, value string) error {
	if value == "" {
		return required(field, value)
	}
	u, err := url.Parse(value)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &ValidationError{Field: field, Message: "must be an absolute URL"}
	}
	return nil
}

func validPort(field string, port int) error {
	if port < 1 || port > 65535 {
		return &ValidationError{Field: field, Message: "must be between 1 and 65535"}
	}
	return nil
}

// Validate returns every problem found, joined.
func (c *Config) Validate() error {
	errs := []error{
		validURL("platform.base_url", c.Platform.BaseURL),
		validURL("platform.login_url", c.Platform.LoginURL),
		validURL("platform.training_url", c.Platform.TrainingURL),
		required("platform.username", c.Platform.Username),
		required("platform.password", c.Platform.Password),
		required("database.host", c.Database.Host),
		required("database.database", c.Database.Database),
		validPort("database.port", c.Database.Port),
	}

	if c.Scrape.PaginationTimeout < c.Scrape.WaitTimeout {
		errs = append(errs, &ValidationError{
			Field:   "scrape.pagination_timeout",
			Message: "must not be shorter than scrape.wait_timeout",
		})
	}

	switch c.Storage.Backend {
	case StorageLocal:
		errs = append(errs, required("storage.local_dir", c.Storage.LocalDir))
	case StorageMinio:
		errs = append(errs,
			required("storage.minio.endpoint", c.Storage.Minio.Endpoint),
			required("storage.minio.bucket", c.Storage.Minio.Bucket),
		)
	case StorageSFTP:
		errs = append(errs,
			required("storage.sftp.host", c.Storage.SFTP.Host),
			required("storage.sftp.user", c.Storage.SFTP.User),
			validPort("storage.sftp.port", c.Storage.SFTP.Port),
		)
	default:
		errs = append(errs, &ValidationError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("unknown backend %q", c.Storage.Backend),
		})
	}

	return errors.Join(errs...)
}
