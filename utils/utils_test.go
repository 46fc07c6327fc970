package utils

import (
	"context"
	"encoding/base64"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateStructMessages(t *testing.T) {
	type input struct {
		FirstName   string `validate:"required"`
		Email       string `validate:"mailformat"`
		Priority    string `validate:"omitempty,oneof=low normal high"`
		CategoryIDs []uint `validate:"max=2"`
	}

	err := ValidateStruct(&input{Email: "not-an-email", Priority: "urgent", CategoryIDs: []uint{1, 2, 3}})
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "first_name is required")
	assert.Contains(t, msg, "email must be a valid email")
	assert.Contains(t, msg, "priority must be one of: low normal high")
	assert.Contains(t, msg, "category_ids must be at most 2")

	assert.NoError(t, ValidateStruct(&input{FirstName: "Ada"}))
}

func TestToSnake(t *testing.T) {
	assert.Equal(t, "first_name", toSnake("FirstName"))
	assert.Equal(t, "url", toSnake("URL"))
	assert.Equal(t, "stage_id", toSnake("StageID"))
}

func TestRenderInvoiceEmail(t *testing.T) {
	body, err := RenderEmail("invoice", InvoiceEmailData{
		Subject:      "Invoice INV-2026-00001",
		CustomerName: "Ada <script>",
		CompanyName:  "Acme Heating",
		Number:       "INV-2026-00001",
		IssueDate:    "2026-03-01",
		Lines:        []InvoiceEmailLine{{Description: "Labour", Quantity: "1.5", UnitPrice: "$80.00", Amount: "$120.00"}},
		Total:        "$120.00",
		PayURL:       "https://pay.example/abc",
		Year:         2026,
	})
	require.NoError(t, err)
	assert.Contains(t, body, "<h2>Invoice INV-2026-00001</h2>")
	assert.Contains(t, body, "<td>Labour</td>")
	assert.Contains(t, body, `href="https://pay.example/abc"`)
	assert.Contains(t, body, "Ada &lt;script&gt;")
	assert.NotContains(t, body, ", due")

	_, err = RenderEmail("welcome", nil)
	assert.Error(t, err)
}

func TestCrypterRoundTrip(t *testing.T) {
	crypter := NewCrypter("0123456789abcdef0123456789abcdef")
	sealed, err := crypter.Encrypt("refresh-token")
	require.NoError(t, err)
	assert.NotEqual(t, "refresh-token", sealed)

	opened, err := crypter.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "refresh-token", opened)

	var plain *Crypter
	passthrough, err := plain.Encrypt("refresh-token")
	require.NoError(t, err)
	assert.Equal(t, "refresh-token", passthrough)
}

func TestGenerateSecureToken(t *testing.T) {
	a, err := GenerateSecureToken(32)
	require.NoError(t, err)
	b, err := GenerateSecureToken(32)
	require.NoError(t, err)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}

func TestAccessTokenRoundTrip(t *testing.T) {
	token, err := GenerateAccessToken("user-1", "a@b.co", "secret", time.Minute)
	require.NoError(t, err)

	claims, err := ParseAccessToken(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "a@b.co", claims.Email)

	_, err = ParseAccessToken(token, "wrong")
	assert.Error(t, err)

	expired, err := GenerateAccessToken("user-1", "a@b.co", "secret", -time.Minute)
	require.NoError(t, err)
	_, err = ParseAccessToken(expired, "secret")
	assert.Error(t, err)
}

func TestTokenFromSessionCookie(t *testing.T) {
	session := `{"access_token":"abc.def.ghi"}`

	assert.Equal(t, "", TokenFromSessionCookie(""))
	assert.Equal(t, "abc.def.ghi", TokenFromSessionCookie("abc.def.ghi"))
	assert.Equal(t, "abc.def.ghi", TokenFromSessionCookie(session))
	assert.Equal(t, "abc.def.ghi", TokenFromSessionCookie(`["abc.def.ghi",""]`))
	assert.Equal(t, "abc.def.ghi", TokenFromSessionCookie("base64-"+base64.StdEncoding.EncodeToString([]byte(session))))
	assert.Equal(t, "abc.def.ghi", TokenFromSessionCookie("base64-"+base64.RawURLEncoding.EncodeToString([]byte(session))))
	assert.Equal(t, "", TokenFromSessionCookie("base64-%%%"))
	assert.Equal(t, "", TokenFromSessionCookie("{broken"))
}

func staticMX(records []*net.MX, err error) MXResolver {
	return func(context.Context, string) ([]*net.MX, error) {
		return records, err
	}
}

func TestCheckEmail(t *testing.T) {
	ctx := context.Background()
	mx := staticMX([]*net.MX{{Host: "mx1.acme.example.", Pref: 10}}, nil)

	result := CheckEmail(ctx, " Ada@Acme.example ", mx)
	assert.Equal(t, "valid", result.Status)
	assert.Equal(t, "ada@acme.example", result.Email)
	assert.True(t, result.HasMX)
	assert.True(t, strings.HasSuffix(result.Details, "preferred mx1.acme.example"))

	assert.Equal(t, "invalid", CheckEmail(ctx, "ada@", mx).Status)

	typo := CheckEmail(ctx, "ada@gmai.com", mx)
	assert.Equal(t, "invalid", typo.Status)
	assert.Equal(t, "ada@gmail.com", typo.Suggestion)

	assert.Equal(t, "disposable", CheckEmail(ctx, "x@mailinator.com", mx).Status)
	assert.True(t, CheckEmail(ctx, "ada@gmail.com", mx).FreeProvider)

	assert.Equal(t, "invalid", CheckEmail(ctx, "ada@acme.example", staticMX(nil, nil)).Status)
	assert.Equal(t, "unknown", CheckEmail(ctx, "ada@acme.example", staticMX(nil, errors.New("timeout"))).Status)
}

func TestPointer(t *testing.T) {
	p := Pointer(5)
	require.NotNil(t, p)
	assert.Equal(t, 5, *p)
}
