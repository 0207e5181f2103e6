package statebus

import (
	"reflect"
	"testing"
)

func TestGetStreamDistinct(t *testing.T) {
	c := newTestContainer()
	var got []any
	sub := c.GetStream("foo").Subscribe(func(v any) { got = append(got, v) })
	defer sub.Unsubscribe()

	c.Update(map[string]any{"foo": "bar"})
	c.Update(map[string]any{"other": 1})
	c.Update(map[string]any{"foo": "bar"})
	c.Update(map[string]any{"foo": "baz"})

	want := []any{nil, "bar", "baz"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("stream = %v, want %v", got, want)
	}
}

func TestGetStreamDeepEquality(t *testing.T) {
	c := newTestContainer()
	var n int
	c.GetStream("cfg").Subscribe(func(any) { n++ })

	c.SetAt("cfg", map[string]any{"a": []any{1, 2}})
	c.SetAt("cfg", map[string]any{"a": []any{1, 2}})

	if n != 2 {
		t.Fatalf("deliveries = %d, want 2", n)
	}
}

func TestUnsubscribe(t *testing.T) {
	c := newTestContainer()
	var n int
	sub := c.GetStream("").Subscribe(func(any) { n++ })

	c.Update(map[string]any{"a": 1})
	sub.Unsubscribe()
	sub.Unsubscribe()
	c.Update(map[string]any{"a": 2})

	if n != 2 {
		t.Fatalf("deliveries = %d, want 2", n)
	}
	select {
	case <-sub.Done():
	default:
		t.Fatal("Done not closed after Unsubscribe")
	}
}

func TestSubscriberMayMutate(t *testing.T) {
	c := newTestContainer()
	c.GetStream("count").Subscribe(func(v any) {
		if n, ok := v.(int); ok && n < 3 {
			c.SetAt("count", n+1)
		}
	})

	c.SetAt("count", 0)
	if got := c.Get("count"); got != 3 {
		t.Fatalf("count = %v, want 3", got)
	}
}

func TestSubscriberPanicIsolated(t *testing.T) {
	var recovered []string
	c := newTestContainer(WithPanicHandler(func(source string, _ any) {
		recovered = append(recovered, source)
	}))
	var healthy []any
	c.GetStream("x").Subscribe(func(v any) {
		if v != nil {
			panic("subscriber down")
		}
	})
	c.GetStream("x").Subscribe(func(v any) { healthy = append(healthy, v) })

	if err := c.SetAt("x", 1); err != nil {
		t.Fatalf("SetAt: %v", err)
	}
	if !reflect.DeepEqual(healthy, []any{nil, 1}) {
		t.Fatalf("healthy subscriber saw %v", healthy)
	}
	if len(recovered) != 1 {
		t.Fatalf("recovered = %v", recovered)
	}
}

func TestActionStream(t *testing.T) {
	c := newTestContainer()

	var all []string
	c.Actions().Stream().Subscribe(func(a Action) { all = append(all, a.Type) })
	var sets []Action
	c.Actions().OfType("[test] SET@a").Subscribe(func(a Action) { sets = append(sets, a) })

	c.SetAt("a", 1)
	c.SetAt("b", 2)
	c.SetAt("a", 3)

	if want := []string{"[test] INIT", "[test] SET@a", "[test] SET@b", "[test] SET@a"}; !reflect.DeepEqual(all, want) {
		t.Fatalf("Stream() = %v, want %v", all, want)
	}
	if len(sets) != 2 || sets[0].Payload != 1 || sets[1].Payload != 3 {
		t.Fatalf("OfType() = %+v", sets)
	}
	if got := c.Actions().Value(); got.String() != "[test] SET@a" {
		t.Fatalf("Value() = %v", got)
	}
}

func TestMapFilter(t *testing.T) {
	c := newTestContainer()
	var got []int
	lengths := Map(c.GetStream("name"), func(v any) int {
		s, _ := v.(string)
		return len(s)
	})
	Filter(lengths, func(n int) bool { return n > 2 }).Subscribe(func(n int) { got = append(got, n) })

	c.SetAt("name", "al")
	c.SetAt("name", "ada")
	c.SetAt("name", "grace")

	if want := []int{3, 5}; !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestStreamIsRestartable(t *testing.T) {
	c := newTestContainer()
	s := c.GetStream("hello")

	var a, b []any
	s.Subscribe(func(v any) { a = append(a, v) })
	c.SetAt("hello", "there")
	s.Subscribe(func(v any) { b = append(b, v) })

	if !reflect.DeepEqual(a, []any{"world", "there"}) || !reflect.DeepEqual(b, []any{"there"}) {
		t.Fatalf("a = %v, b = %v", a, b)
	}
}

func TestWhere(t *testing.T) {
	c := New(map[string]any{
		"people": []any{
			map[string]any{"name": "ada", "role": "admin"},
			map[string]any{"name": "bob", "role": "user"},
			map[string]any{"name": "eve"},
			"not a record",
		},
		"byID": map[string]any{
			"b": map[string]any{"name": "bob", "role": "admin"},
			"a": map[string]any{"name": "ada", "role": "admin"},
		},
	}, WithName("test"))

	tests := []struct {
		name  string
		path  string
		rules Rules
		want  []any
	}{
		{
			name:  "list match",
			path:  "people",
			rules: Rules{"role": Eq("admin")},
			want:  []any{map[string]any{"name": "ada", "role": "admin"}},
		},
		{
			name:  "missing field fails",
			path:  "people",
			rules: Rules{"role": func(any) bool { return true }},
			want: []any{
				map[string]any{"name": "ada", "role": "admin"},
				map[string]any{"name": "bob", "role": "user"},
			},
		},
		{
			name:  "mapping values in key order",
			path:  "byID",
			rules: Rules{"role": Eq("admin")},
			want: []any{
				map[string]any{"name": "ada", "role": "admin"},
				map[string]any{"name": "bob", "role": "admin"},
			},
		},
		{
			name:  "no collection",
			path:  "missing",
			rules: Rules{"role": Eq("admin")},
			want:  []any{},
		},
		{
			name: "empty rules keep everything",
			path: "people",
			want: c.Get("people").([]any),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Where(tt.path, tt.rules); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Where() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWhereStream(t *testing.T) {
	c := New(map[string]any{"todos": []any{}}, WithName("test"))
	var counts []int
	c.WhereStream("todos", Rules{"done": Eq(false)}).Subscribe(func(items []any) {
		counts = append(counts, len(items))
	})

	c.SetAt("todos", []any{map[string]any{"done": false}})
	c.SetAt("title", "unrelated")
	c.SetAt("todos", []any{map[string]any{"done": false}, map[string]any{"done": true}})
	c.SetAt("todos", []any{map[string]any{"done": false}, map[string]any{"done": false}})

	if want := []int{0, 1, 2}; !reflect.DeepEqual(counts, want) {
		t.Fatalf("counts = %v, want %v", counts, want)
	}
}
