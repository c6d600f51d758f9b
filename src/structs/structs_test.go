package structs

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppCmdValidate(t *testing.T) {
	valid := AppCmd{
		Name:        "greet",
		Description: "say hi",
		Options: []AppCmdOption{
			{Type: AppCmdOptionUser, Name: "who", Description: "target", Required: true},
			{Type: AppCmdOptionString, Name: "text", Description: "message"},
		},
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name string
		cmd  AppCmd
		err  string
	}{
		{"uppercase", AppCmd{Name: "Greet", Description: "x"}, "invalid chat input name"},
		{"too long", AppCmd{Name: strings.Repeat("a", 33), Description: "x"}, "invalid chat input name"},
		{"no description", AppCmd{Name: "greet"}, "description"},
		{"required after optional", AppCmd{Name: "greet", Description: "x", Options: []AppCmdOption{
			{Type: AppCmdOptionString, Name: "a", Description: "a"},
			{Type: AppCmdOptionString, Name: "b", Description: "b", Required: true},
		}}, "required options must come first"},
		{"user command options", AppCmd{Type: AppCmdTypeUser, Name: "Info", Options: []AppCmdOption{
			{Type: AppCmdOptionString, Name: "a", Description: "a"},
		}}, "only chat input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorContains(t, tt.cmd.Validate(), tt.err)
		})
	}

	assert.NoError(t, AppCmd{Type: AppCmdTypeMessage, Name: "Report Message"}.Validate())
}

func TestInteractionData(t *testing.T) {
	var i Interaction
	raw := `{"id":"1","type":2,"token":"t","data":{"name":"admin","options":[
		{"name":"user","type":2,"options":[
			{"name":"ban","type":1,"options":[{"name":"reason","type":3,"value":"spam"}]}
		]}
	]},"user":{"id":"9","username":"dm-user"}}`
	require.NoError(t, json.Unmarshal([]byte(raw), &i))

	assert.Equal(t, "admin user ban", i.Data.Route())
	_, ok := i.Data.Option("reason")
	assert.False(t, ok)
	reason := i.Data.Options[0].Options[0].Options[0]
	s, ok := reason.StringValue()
	assert.True(t, ok)
	assert.Equal(t, "spam", s)

	require.NotNil(t, i.Invoker())
	assert.Equal(t, "dm-user", i.Invoker().Username)

	nick := "nick"
	i.Member = &Member{Nick: &nick, User: &User{ID: "3", Username: "member"}}
	assert.Equal(t, "member", i.Invoker().Username)
	assert.Equal(t, "nick", i.Member.DisplayName())
}

func TestDisplayNames(t *testing.T) {
	global := "Global"
	u := User{ID: "1", Username: "name", GlobalName: &global}
	assert.Equal(t, "Global", u.DisplayName())
	assert.Equal(t, "<@1>", u.Mention())
	assert.Equal(t, "name", User{Username: "name"}.DisplayName())

	m := Member{User: &u, Roles: []string{"r1"}}
	assert.Equal(t, "Global", m.DisplayName())
	assert.True(t, m.HasRole("r1"))
	assert.False(t, m.HasRole("r2"))
	assert.Empty(t, Member{}.DisplayName())
}
