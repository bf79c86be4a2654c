package control

import "testing"

func TestController_PauseResume(t *testing.T) {
	c := NewController()

	if st := c.Snapshot(); st.State != Running {
		t.Fatalf("initial state = %v, want running", st.State)
	}

	if !c.Pause("betting site maintenance") {
		t.Fatal("Pause from running should succeed")
	}
	st := c.Snapshot()
	if st.State != Paused || st.Reason != "betting site maintenance" {
		t.Errorf("after pause: %+v", st)
	}

	if c.Pause("again") {
		t.Error("Pause while paused should be rejected")
	}
	if st := c.Snapshot(); st.Reason != "betting site maintenance" {
		t.Error("rejected pause must not overwrite the reason")
	}

	if !c.Resume() {
		t.Fatal("Resume from paused should succeed")
	}
	st = c.Snapshot()
	if st.State != Running || st.Reason != "" {
		t.Errorf("after resume: %+v", st)
	}
	if c.Resume() {
		t.Error("Resume while running should be rejected")
	}
}

func TestController_ConfigMode(t *testing.T) {
	c := NewController()

	if !c.EnterConfig() {
		t.Fatal("EnterConfig from running should succeed")
	}
	if c.EnterConfig() {
		t.Error("EnterConfig while in config mode should be rejected")
	}
	if c.Pause("x") {
		t.Error("Pause while in config mode should be rejected")
	}
	if c.Resume() {
		t.Error("Resume while in config mode should be rejected")
	}

	if !c.ExitConfig() {
		t.Fatal("ExitConfig should succeed")
	}
	if c.ExitConfig() {
		t.Error("ExitConfig while running should be rejected")
	}
	if st := c.Snapshot(); st.State != Running {
		t.Errorf("after exit: %+v", st)
	}
}

func TestController_NoPauseConfigCrossing(t *testing.T) {
	c := NewController()
	c.Pause("stopped")

	if c.EnterConfig() {
		t.Error("EnterConfig while paused should be rejected")
	}
	if c.ExitConfig() {
		t.Error("ExitConfig while paused should be rejected")
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Running, "running"},
		{Paused, "paused"},
		{ConfigMode, "config-mode"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
