package client

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/ternarybob/harvestd/internal/models"
)

// Classifier maps an attempt failure to ErrorKindTransient or ErrorKindPermanent
type Classifier func(err error) models.ErrorKind

// DefaultClassifier treats network faults, timeouts and anything reporting Temporary() as
// transient. Everything else, including malformed payloads, is permanent.
func DefaultClassifier(err error) models.ErrorKind {
	if err == nil {
		return ""
	}

	var he *models.HarvestError
	if errors.As(err, &he) && (he.Kind == models.ErrorKindTransient || he.Kind == models.ErrorKindPermanent) {
		return he.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return models.ErrorKindTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return models.ErrorKindTransient
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return models.ErrorKindTransient
	}

	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return models.ErrorKindTransient
	}

	var temp interface{ Temporary() bool }
	if errors.As(err, &temp) && temp.Temporary() {
		return models.ErrorKindTransient
	}

	return models.ErrorKindPermanent
}

// retryAfter returns an upstream-requested delay, or 0
func retryAfter(err error) time.Duration {
	var ra interface{ RetryAfter() time.Duration }
	if errors.As(err, &ra) {
		return ra.RetryAfter()
	}
	return 0
}

// errorCode returns the upstream code carried by err, or 0
func errorCode(err error) int {
	var coded interface{ ErrorCode() int }
	if errors.As(err, &coded) {
		return coded.ErrorCode()
	}
	return 0
}
