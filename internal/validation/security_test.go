package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{"relative dir", "./flows/", "flows", false},
		{"nested file", "site/pages/home.html", "site/pages/home.html", false},
		{"dots in names", "v1..2/page.html", "v1..2/page.html", false},
		{"empty", "  ", "", true},
		{"parent", "../etc", "", true},
		{"hidden traversal", "flows/../../etc", "", true},
		{"shell", "page.html; rm -rf /", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidatePath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateOrigin(t *testing.T) {
	allowed := []string{"https://shop.test", "localhost:7331"}

	assert.NoError(t, ValidateOrigin("https://SHOP.test", allowed))
	assert.NoError(t, ValidateOrigin("http://localhost:7331", allowed))
	assert.NoError(t, ValidateOrigin("https://any.test", []string{"*"}))
	assert.NoError(t, ValidateOrigin("https://ÉCOLE.test", []string{"https://école.test"}))
	assert.Error(t, ValidateOrigin("https://evil.test", allowed))
	assert.Error(t, ValidateOrigin("", allowed))
	assert.Error(t, ValidateOrigin("file://shop.test", []string{"*"}))
}

func TestValidateURL(t *testing.T) {
	assert.NoError(t, ValidateURL("https://shop.test/checkout?step=1"))
	assert.Error(t, ValidateURL("javascript:alert(1)"))
	assert.Error(t, ValidateURL("https://"))
	assert.Error(t, ValidateURL("https://shop.test/a b"))
}

func TestValidateFileExtension(t *testing.T) {
	exts := []string{".html", ".yml"}
	assert.NoError(t, ValidateFileExtension("page.HTML", exts))
	assert.Error(t, ValidateFileExtension("page.go", exts))
	assert.Error(t, ValidateFileExtension("Makefile", exts))
	assert.Error(t, ValidateFileExtension("", exts))
}
