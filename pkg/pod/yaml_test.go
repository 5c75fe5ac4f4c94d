package pod

import "testing"

func TestSplitYAMLDocuments(t *testing.T) {
	data := "kind: Pod\nmetadata:\n  name: a\n---\nkind: Service\nmetadata:\n  name: b\n"
	docs, err := splitYAMLDocuments(data)
	if err != nil {
		t.Fatalf("splitYAMLDocuments() error: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("splitYAMLDocuments() = %d docs, want 2", len(docs))
	}
}

func TestSplitYAMLDocumentsSingle(t *testing.T) {
	docs, err := splitYAMLDocuments("kind: Pod\nmetadata:\n  name: a\n")
	if err != nil {
		t.Fatalf("splitYAMLDocuments() error: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("splitYAMLDocuments() = %d docs, want 1", len(docs))
	}
}

func TestSplitYAMLDocumentsInvalid(t *testing.T) {
	if _, err := splitYAMLDocuments("kind: [unterminated"); err == nil {
		t.Error("splitYAMLDocuments() on malformed yaml: error = nil, want non-nil")
	}
}

func TestDecodePodBodyFromBarePod(t *testing.T) {
	pod := &k8sDoc{Spec: []byte(`{"kube_type":2,"containers":[{"name":"c1","image":"nginx","kubes":1}]}`)}
	pod.Metadata.Name = "my-pod"

	name, body, err := decodePodBody(pod, nil)
	if err != nil {
		t.Fatalf("decodePodBody() error: %v", err)
	}
	if name != "my-pod" {
		t.Errorf("name = %q, want my-pod", name)
	}
	if body.KubeType != 2 || len(body.Containers) != 1 {
		t.Errorf("body = %+v, want kube_type=2 with 1 container", body)
	}
}

func TestDecodePodBodyFromReplicationController(t *testing.T) {
	rc := &k8sDoc{Spec: []byte(`{"kube_type":1,"template":{"spec":{"containers":[{"name":"c1","image":"nginx","kubes":1}]}}}`)}
	rc.Metadata.Name = "my-rc"

	name, body, err := decodePodBody(nil, rc)
	if err != nil {
		t.Fatalf("decodePodBody() error: %v", err)
	}
	if name != "my-rc" {
		t.Errorf("name = %q, want my-rc", name)
	}
	if body.KubeType != 1 || len(body.Containers) != 1 {
		t.Errorf("body = %+v, want kube_type=1 with 1 container", body)
	}
}
