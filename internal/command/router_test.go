package command

import "testing"

func TestRouteStop(t *testing.T) {
	cases := []string{"stop", "Stop.", "STOP!", "cancel", "stop talking", "that's enough", "hold on", "wait"}
	for _, c := range cases {
		if got := Route(c); got != KindStop {
			t.Errorf("Route(%q) = %v, want KindStop", c, got)
		}
	}
}

func TestRouteStopIsNotSubstringMatch(t *testing.T) {
	if got := Route("please stop making that noise"); got == KindStop {
		t.Errorf("long sentence containing stop should not match as a whole")
	}
}

func TestRouteListeningAck(t *testing.T) {
	cases := []string{"", "  ", ".", "a"}
	for _, c := range cases {
		if got := Route(c); got != KindListeningAck {
			t.Errorf("Route(%q) = %v, want KindListeningAck", c, got)
		}
	}
}

func TestRouteDispatch(t *testing.T) {
	if got := Route("what time is it"); got != KindDispatch {
		t.Errorf("Route(...) = %v, want KindDispatch", got)
	}
}
