package fingerprint

import "testing"

func TestPlugin_IdenticalInputsProduceSameFingerprint(t *testing.T) {
	in := PluginInputs{
		InstallURL:        "pkg-x==1.0",
		ExecutableOrEntry: "tap-x",
		InterpreterTag:    "cp311",
		ArchTag:           "x86_64",
	}

	fp1 := Plugin(in)
	fp2 := Plugin(in)

	if fp1 != fp2 {
		t.Fatalf("identical inputs produced different fingerprints: %s != %s", fp1, fp2)
	}
	if len(fp1) != 40 {
		t.Fatalf("expected a 40-hex-digit fingerprint, got %d chars: %s", len(fp1), fp1)
	}
}

func TestPlugin_InstallURLChangeInvalidatesFingerprint(t *testing.T) {
	base := PluginInputs{InstallURL: "pkg-x==1.0", ExecutableOrEntry: "tap-x", InterpreterTag: "cp311", ArchTag: "x86_64"}
	changed := base
	changed.InstallURL = "pkg-x==1.1"

	if Plugin(base) == Plugin(changed) {
		t.Fatal("changing install url did not change the fingerprint")
	}
}

func TestTask_ScalarMapOrderIsIrrelevant(t *testing.T) {
	files := []FileInput{{Path: "a.json", Content: []byte(`{"a":1}`)}}

	fp1 := Task(TaskInputs{
		Files:      files,
		Scalars:    map[string]string{"select": "*.*", "env": "prod"},
		WorkingDir: "/work",
	})
	fp2 := Task(TaskInputs{
		Files:      files,
		Scalars:    map[string]string{"env": "prod", "select": "*.*"},
		WorkingDir: "/work",
	})

	if fp1 != fp2 {
		t.Fatalf("scalar map insertion order affected the fingerprint: %s != %s", fp1, fp2)
	}
}

func TestTask_ContentChangeInvalidatesFingerprint(t *testing.T) {
	fp1 := Task(TaskInputs{Files: []FileInput{{Path: "a.json", Content: []byte("v1")}}})
	fp2 := Task(TaskInputs{Files: []FileInput{{Path: "a.json", Content: []byte("v2")}}})
	if fp1 == fp2 {
		t.Fatal("changed file content did not change the fingerprint")
	}
}

func TestTask_PathOnlyChangeInvalidatesFingerprint(t *testing.T) {
	fp1 := Task(TaskInputs{Files: []FileInput{{Path: "a.json", Content: []byte("v1")}}})
	fp2 := Task(TaskInputs{Files: []FileInput{{Path: "b.json", Content: []byte("v1")}}})
	if fp1 == fp2 {
		t.Fatal("changed file path did not change the fingerprint")
	}
}
