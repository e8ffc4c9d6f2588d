package abi

import (
	"strings"
	"testing"
	"unsafe"
)

func TestParseResultSize(t *testing.T) {
	var r ParseResult
	if got := unsafe.Sizeof(r); got != ParseResultSize {
		t.Fatalf("unsafe.Sizeof(ParseResult{}) = %d, want %d", got, ParseResultSize)
	}
}

func TestConduitResultSize(t *testing.T) {
	var c ConduitResult
	if got := unsafe.Sizeof(c); got != ConduitResultSize {
		t.Fatalf("unsafe.Sizeof(ConduitResult{}) = %d, want %d", got, ConduitResultSize)
	}
}

func TestParseResultStringRoundTrip(t *testing.T) {
	var r ParseResult
	r.SetTitle("On the Origin of Species")
	r.SetAuthor("Charles Darwin")
	r.SetMimeType("application/pdf")
	r.SetSHA256(strings.Repeat("a", 64))

	if got := r.GetTitle(); got != "On the Origin of Species" {
		t.Fatalf("GetTitle() = %q", got)
	}
	if got := r.GetAuthor(); got != "Charles Darwin" {
		t.Fatalf("GetAuthor() = %q", got)
	}
	if got := r.GetMimeType(); got != "application/pdf" {
		t.Fatalf("GetMimeType() = %q", got)
	}
	if got := r.GetSHA256(); got != strings.Repeat("a", 64) {
		t.Fatalf("GetSHA256() = %q", got)
	}
}

func TestParseResultStringTruncation(t *testing.T) {
	var r ParseResult
	long := strings.Repeat("x", 400)
	r.SetErrorMsg(long)
	got := r.GetErrorMsg()
	if len(got) != len(r.ErrorMsg)-1 {
		t.Fatalf("GetErrorMsg() length = %d, want %d", len(got), len(r.ErrorMsg)-1)
	}
}

func TestParseResultValid(t *testing.T) {
	tests := []struct {
		name  string
		setup func(r *ParseResult)
		want  bool
	}{
		{
			name: "ok with valid hash and known kind",
			setup: func(r *ParseResult) {
				r.Status = StatusOK
				r.ContentKind = ContentPDF
				r.SetSHA256(strings.Repeat("f", 64))
			},
			want: true,
		},
		{
			name: "ok with unknown kind is invalid",
			setup: func(r *ParseResult) {
				r.Status = StatusOK
				r.ContentKind = ContentUnknown
				r.SetSHA256(strings.Repeat("f", 64))
			},
			want: false,
		},
		{
			name: "ok with malformed hash is invalid",
			setup: func(r *ParseResult) {
				r.Status = StatusOK
				r.ContentKind = ContentPDF
				r.SetSHA256("not-hex")
			},
			want: false,
		},
		{
			name: "non-ok status is always valid regardless of hash",
			setup: func(r *ParseResult) {
				r.Status = StatusParseError
				r.ContentKind = ContentUnknown
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r ParseResult
			tt.setup(&r)
			if got := r.Valid(); got != tt.want {
				t.Fatalf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecodeParseResultRoundTrip(t *testing.T) {
	var r ParseResult
	r.Status = StatusOK
	r.ContentKind = ContentImage
	r.PageCount = 3
	r.WordCount = 42
	r.SetSHA256(strings.Repeat("b", 64))
	r.SetTitle("photo.jpg")

	buf := append([]byte(nil), r.Bytes()...)

	decoded, err := DecodeParseResult(buf)
	if err != nil {
		t.Fatalf("DecodeParseResult: %v", err)
	}
	if decoded.Status != StatusOK || decoded.ContentKind != ContentImage || decoded.PageCount != 3 {
		t.Fatalf("decoded fields mismatch: %+v", decoded)
	}
	if decoded.GetTitle() != "photo.jpg" {
		t.Fatalf("decoded title = %q", decoded.GetTitle())
	}
}

func TestDecodeParseResultRejectsWrongSize(t *testing.T) {
	if _, err := DecodeParseResult(make([]byte, 10)); err == nil {
		t.Fatal("expected error for undersized buffer")
	}
}

func TestParseStatusRetryable(t *testing.T) {
	retryable := map[ParseStatus]bool{
		StatusOK:                false,
		StatusError:             true,
		StatusFileNotFound:      false,
		StatusParseError:        false,
		StatusNullPointer:       false,
		StatusUnsupportedFormat: false,
		StatusOutOfMemory:       true,
	}
	for status, want := range retryable {
		if got := status.Retryable(); got != want {
			t.Errorf("%s.Retryable() = %v, want %v", status, got, want)
		}
	}
}
