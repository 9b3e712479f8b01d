package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/autotrack/internal/errors"
	"github.com/conneroisu/autotrack/internal/location"
)

type attrs map[string]string

func (a attrs) Attr(name string) (string, bool) {
	v, ok := a[name]
	return v, ok
}

func TestContextRoundTrip(t *testing.T) {
	for _, ctx := range []location.Context{
		location.NewContext(location.KindRootLocation, "home"),
		location.NewContext(location.KindPressable, `quote "and" <tag>`),
		location.NewLink("docs", "https://example.com/docs?a=1&b=2"),
	} {
		encoded, err := EncodeContext(ctx)
		require.NoError(t, err)

		decoded, err := DecodeContext(encoded)
		require.NoError(t, err)
		assert.Equal(t, ctx, decoded)
	}
}

func TestEncodeContext_Invalid(t *testing.T) {
	_, err := EncodeContext(location.Context{Kind: "WidgetContext", ID: "x"})
	assert.True(t, errors.IsDecodeError(err))

	_, err = EncodeContext(location.Context{Kind: location.KindContent})
	assert.Error(t, err)
}

func TestDecodeContext_Failures(t *testing.T) {
	tests := []struct {
		name  string
		value string
		code  string
	}{
		{"not json", `{"_type":`, errors.ErrCodeInvalidJSON},
		{"not an object", `"ContentContext"`, errors.ErrCodeInvalidJSON},
		{"unknown field", `{"_type":"ContentContext","id":"a","extra":1}`, errors.ErrCodeInvalidJSON},
		{"trailing data", `{"_type":"ContentContext","id":"a"} {}`, errors.ErrCodeInvalidJSON},
		{"no type", `{"id":"a"}`, errors.ErrCodeInvalidShape},
		{"unknown type", `{"_type":"WidgetContext","id":"a"}`, errors.ErrCodeUnknownKind},
		{"no id", `{"_type":"ContentContext"}`, errors.ErrCodeMissingID},
		{"empty id", `{"_type":"ContentContext","id":""}`, errors.ErrCodeMissingID},
		{"link without href", `{"_type":"LinkContext","id":"a"}`, errors.ErrCodeInvalidShape},
		{"null", `null`, errors.ErrCodeInvalidShape},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, err := DecodeContext(tt.value)
			require.Error(t, err)
			assert.Equal(t, location.Context{}, ctx)

			var te *errors.TrackerError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, errors.ErrorTypeDecode, te.Type)
			assert.Equal(t, tt.code, te.Code)
			assert.Equal(t, AttrContext, te.Attribute)
		})
	}
}

func TestDecodeClickTracking_SurfaceForms(t *testing.T) {
	tests := []struct {
		value string
		want  *ClickTracking
	}{
		{"", nil},
		{"false", nil},
		{"true", &ClickTracking{}},
		{"{}", &ClickTracking{}},
		{`{"waitUntilTracked":false}`, &ClickTracking{}},
		{`{"waitUntilTracked":true}`, &ClickTracking{WaitUntilTracked: &WaitUntilTracked{}}},
		{
			`{"waitUntilTracked":{"intervalMs":50,"timeoutMs":500,"flushQueue":"onTimeout"}}`,
			&ClickTracking{WaitUntilTracked: &WaitUntilTracked{IntervalMs: 50, TimeoutMs: 500, FlushQueue: FlushOnTimeout}},
		},
		{
			`{"waitUntilTracked":{"flushQueue":true}}`,
			&ClickTracking{WaitUntilTracked: &WaitUntilTracked{FlushQueue: FlushAlways}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got, err := DecodeClickTracking(tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeClickTracking_Invalid(t *testing.T) {
	for _, value := range []string{
		"1",
		"yes",
		`{"waitUntilTracked":{"flushQueue":"sometimes"}}`,
		`{"waitUntilTracked":{"intervalMs":-1}}`,
		`{"waitUntil":true}`,
	} {
		_, err := DecodeClickTracking(value)
		assert.True(t, errors.IsDecodeError(err), value)
	}
}

func TestClickTrackingRoundTrip(t *testing.T) {
	for _, c := range []*ClickTracking{
		nil,
		{},
		{WaitUntilTracked: &WaitUntilTracked{}},
		{WaitUntilTracked: &WaitUntilTracked{IntervalMs: 10, TimeoutMs: 20, FlushQueue: FlushNever}},
	} {
		encoded, err := EncodeClickTracking(c)
		require.NoError(t, err)
		decoded, err := DecodeClickTracking(encoded)
		require.NoError(t, err)
		assert.Equal(t, c, decoded, encoded)
	}
}

func TestBlurTracking(t *testing.T) {
	for _, b := range []*BlurTracking{nil, {}, {TrackValue: true}} {
		encoded, err := EncodeBlurTracking(b)
		require.NoError(t, err)
		decoded, err := DecodeBlurTracking(encoded)
		require.NoError(t, err)
		assert.Equal(t, b, decoded)
	}

	_, err := DecodeBlurTracking(`{"trackValue":"yes"}`)
	assert.Error(t, err)
}

func TestVisibilityTracking(t *testing.T) {
	got, err := DecodeVisibilityTracking("true")
	require.NoError(t, err)
	assert.Equal(t, &VisibilityTracking{Mode: VisibilityAuto}, got)

	got, err = DecodeVisibilityTracking(`{"mode":"manual","isVisible":true}`)
	require.NoError(t, err)
	assert.Equal(t, &VisibilityTracking{Mode: VisibilityManual, IsVisible: true}, got)

	for _, v := range []*VisibilityTracking{
		nil,
		{Mode: VisibilityAuto},
		{Mode: VisibilityManual, IsVisible: false},
		{Mode: VisibilityManual, IsVisible: true},
	} {
		encoded, err := EncodeVisibilityTracking(v)
		require.NoError(t, err)
		decoded, err := DecodeVisibilityTracking(encoded)
		require.NoError(t, err)
		assert.Equal(t, v, decoded, encoded)
	}

	for _, value := range []string{
		`{"mode":"manual"}`,
		`{"mode":"auto","isVisible":true}`,
		`{"mode":"sometimes"}`,
		`{}`,
	} {
		_, err := DecodeVisibilityTracking(value)
		assert.True(t, errors.IsDecodeError(err), value)
	}

	_, err = EncodeVisibilityTracking(&VisibilityTracking{Mode: "sometimes"})
	assert.Error(t, err)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		value string
		want  Validation
	}{
		{"", DefaultValidation},
		{"true", DefaultValidation},
		{"false", Validation{}},
		{"{}", DefaultValidation},
		{`{"locationUniqueness":false}`, Validation{}},
		{`{"locationUniqueness":true}`, DefaultValidation},
	}
	for _, tt := range tests {
		got, err := DecodeValidation(tt.value)
		require.NoError(t, err, tt.value)
		assert.Equal(t, tt.want, got, tt.value)
	}

	_, err := DecodeValidation(`{"locationUniqueness":1}`)
	assert.Error(t, err)

	for _, v := range []Validation{{}, DefaultValidation} {
		encoded, err := EncodeValidation(v)
		require.NoError(t, err)
		decoded, err := DecodeValidation(encoded)
		require.NoError(t, err)
		assert.Equal(t, v, decoded)
	}
}

func TestChildQueries(t *testing.T) {
	payload := TagAttributes{AttrContext: `{"_type":"PressableContext","id":"buy"}`, AttrTrackClicks: "true"}
	q, err := NewChildQuery("button.buy", payload)
	require.NoError(t, err)
	placeholder, err := NewChildQuery("a", nil)
	require.NoError(t, err)

	encoded, err := EncodeChildQueries([]ChildQuery{q, placeholder})
	require.NoError(t, err)

	decoded, err := DecodeChildQueries(encoded)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	assert.Equal(t, "button.buy", decoded[0].QueryAll)

	got, err := decoded[0].Attributes()
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Equal(t, []string{AttrContext, AttrTrackClicks}, got.Names())

	_, err = decoded[1].Attributes()
	assert.True(t, errors.IsDecodeError(err))
}

func TestDecodeChildQueries_AnyInvalidEntryFailsTheList(t *testing.T) {
	for _, value := range []string{
		`[{"queryAll":"a"},{"tagAs":{}}]`,
		`[{"queryAll":"a"},{"queryAll":" "}]`,
		`[{"queryAll":"a","tagAs":"x"}]`,
		`{"queryAll":"a"}`,
		`null`,
	} {
		queries, err := DecodeChildQueries(value)
		assert.Nil(t, queries, value)
		assert.True(t, errors.IsDecodeError(err), value)
	}

	empty, err := DecodeChildQueries(`[]`)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestDecodeTagAttributes(t *testing.T) {
	_, err := DecodeTagAttributes(`{"context":"{\"_type\":\"ContentContext\",\"id\":\"c\"}"}`)
	assert.NoError(t, err)

	for _, value := range []string{
		`{}`,
		`{"track-clicks":"true"}`,
		`{"context":"{\"_type\":\"ContentContext\"}"}`,
		`{"context":"{\"_type\":\"ContentContext\",\"id\":\"c\"}","tracked":"true"}`,
		`{"context":"{\"_type\":\"ContentContext\",\"id\":\"c\"}","onclick":"x"}`,
	} {
		_, err := DecodeTagAttributes(value)
		assert.Error(t, err, value)
	}
}

func TestDecodeElement(t *testing.T) {
	el := attrs{
		AttrElementID:       "el-1",
		AttrParentElementID: "parent",
		AttrContext:         `{"_type":"OverlayContext","id":"modal"}`,
		AttrTrackVisibility: `{"mode":"auto"}`,
		AttrTrackClicks:     "false",
		AttrValidate:        `{"locationUniqueness":false}`,
		AttrTagChildren:     `[{"queryAll":"button"}]`,
		AttrTracked:         "true",
	}

	decoded, err := DecodeElement(el)
	require.NoError(t, err)
	assert.Equal(t, "el-1", decoded.ElementID)
	assert.Equal(t, "parent", decoded.ParentElementID)
	assert.Equal(t, location.NewContext(location.KindOverlay, "modal"), decoded.Context)
	assert.Nil(t, decoded.TrackClicks)
	assert.Nil(t, decoded.TrackBlurs)
	assert.Equal(t, &VisibilityTracking{Mode: VisibilityAuto}, decoded.TrackVisibility)
	assert.False(t, decoded.Validate.LocationUniqueness)
	assert.Len(t, decoded.Children, 1)
	assert.True(t, decoded.Tracked)

	assert.True(t, IsTagged(el))
	assert.True(t, HasChildQueries(el))
	assert.True(t, IsTracked(el))

	_, err = DecodeElement(attrs{})
	assert.True(t, errors.IsDecodeError(err))

	el[AttrTrackBlurs] = "maybe"
	decoded, err = DecodeElement(el)
	assert.Nil(t, decoded)
	assert.Error(t, err)
}
