package naming

import (
	"testing"
)

func TestSnake(t *testing.T) {
	tests := map[string]string{
		"CreatedAt":  "created_at",
		"UserID":     "user_id",
		"HTTPServer": "http_server",
		"Name":       "name",
		"":           "",
	}
	for in, want := range tests {
		if got := Snake(in); got != want {
			t.Errorf("Snake(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestComposedStrategy(t *testing.T) {
	s := MaxLength{
		Max: 10,
		Inner: Prefix{
			Table: "app_",
			Inner: Pluralized{Inner: SnakeCase{}},
		},
	}

	if got := Table(s, "Category"); got != "app_catego" {
		t.Errorf("Table() = %q, want %q", got, "app_catego")
	}
	if got := Table(s, "User"); got != "app_users" {
		t.Errorf("Table() = %q, want %q", got, "app_users")
	}
	if got := Column(s, "OrderDate"); got != "order_date" {
		t.Errorf("Column() = %q, want %q", got, "order_date")
	}
}

func TestUpperCase(t *testing.T) {
	s := UpperCase{Inner: SnakeCase{}}
	if got := s.TableName("OrderLine"); got != "ORDER_LINE" {
		t.Errorf("TableName() = %q, want ORDER_LINE", got)
	}
}

func TestAlias(t *testing.T) {
	s := Alias{
		Inner:   SnakeCase{},
		Tables:  map[string]string{"Person": "people_v2"},
		Columns: map[string]string{"EMail": "email"},
	}
	if got := s.TableName("Person"); got != "people_v2" {
		t.Errorf("TableName() = %q", got)
	}
	if got := s.ColumnName("EMail"); got != "email" {
		t.Errorf("ColumnName() = %q", got)
	}
	if got := s.ColumnName("FirstName"); got != "first_name" {
		t.Errorf("ColumnName() = %q", got)
	}
}

func TestBaseIsIdentity(t *testing.T) {
	var s Strategy = Base{}
	if Table(s, "MyTable") != "MyTable" || Column(s, "MyCol") != "MyCol" || Schema(s, "") != "" {
		t.Error("Base should leave names unchanged")
	}
}

func TestByName(t *testing.T) {
	for _, name := range []string{"", "base", "snake", "snake_plural", "upper"} {
		if _, err := ByName(name); err != nil {
			t.Errorf("ByName(%q) error = %v", name, err)
		}
	}
	if _, err := ByName("camel"); err == nil {
		t.Error("ByName(camel) should fail")
	}
}
