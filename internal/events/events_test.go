package events

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/conneroisu/autotrack/internal/location"
)

func TestNew_CopiesInputs(t *testing.T) {
	stack := location.Stack{location.NewContext(location.KindRootLocation, "home")}
	globals := []GlobalContext{{Kind: "ApplicationContext", ID: "app"}}

	ev := Press(stack, globals)
	stack[0].ID = "changed"
	globals[0].ID = "changed"

	assert.Equal(t, TypePress, ev.Type)
	assert.NotEmpty(t, ev.ID)
	assert.False(t, ev.Time.IsZero())
	assert.Equal(t, "home", ev.LocationStack[0].ID)
	assert.Equal(t, "app", ev.GlobalContexts[0].ID)
}

func TestConstructors(t *testing.T) {
	assert.Equal(t, TypeInputChange, InputChange(nil, nil).Type)
	assert.Equal(t, TypeVisible, Visible(nil, nil).Type)
	assert.Equal(t, TypeHidden, Hidden(nil, nil).Type)
	assert.Equal(t, TypeApplicationLoaded, ApplicationLoaded(nil, nil).Type)
	assert.NotNil(t, Hidden(nil, nil).GlobalContexts)
	assert.NotEqual(t, Press(nil, nil).ID, Press(nil, nil).ID)
}

func TestWithAttribute(t *testing.T) {
	ev := InputChange(nil, nil)
	changed := ev.WithAttribute("value", "a@b.c")

	assert.Nil(t, ev.Attributes)
	assert.Equal(t, "a@b.c", changed.Attributes["value"])
}
