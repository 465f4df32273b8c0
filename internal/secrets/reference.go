// Package secrets resolves declarative secret references embedded in remote
// configuration into plaintext values.
package secrets

import (
	"encoding/json"
	"fmt"
)

// ReferenceType is the wire tag of a secret reference.
type ReferenceType string

const (
	ReferenceTypeLiteral     ReferenceType = "literal"
	ReferenceTypeEnvironment ReferenceType = "environment"
	ReferenceTypeKubernetes  ReferenceType = "kubernetes"
)

// LiteralSource carries the secret value inline.
type LiteralSource struct {
	Value     string `json:"value"`
	Encrypted *bool  `json:"encrypted,omitempty"`
}

// IsEncrypted reports whether the value is flagged as ciphertext.
func (s LiteralSource) IsEncrypted() bool {
	return s.Encrypted != nil && *s.Encrypted
}

// EnvironmentSource points at a process environment variable.
type EnvironmentSource struct {
	VariableName string `json:"variable_name"`
}

// KubernetesSource points at a key of a secret in the managed secret store.
type KubernetesSource struct {
	SecretName string  `json:"secret_name"`
	Key        string  `json:"key"`
	Namespace  *string `json:"namespace,omitempty"`
}

// Reference is a tagged secret pointer. Exactly one of Literal, Environment
// and Kubernetes is set, the one matching Type.
type Reference struct {
	Type        ReferenceType
	Literal     *LiteralSource
	Environment *EnvironmentSource
	Kubernetes  *KubernetesSource
}

// Literal returns a plain inline reference.
func Literal(value string) Reference {
	return Reference{Type: ReferenceTypeLiteral, Literal: &LiteralSource{Value: value}}
}

// EncryptedLiteral returns an inline reference flagged as encrypted.
func EncryptedLiteral(value string) Reference {
	encrypted := true
	return Reference{Type: ReferenceTypeLiteral, Literal: &LiteralSource{Value: value, Encrypted: &encrypted}}
}

// Environment returns a reference to the named environment variable.
func Environment(variableName string) Reference {
	return Reference{Type: ReferenceTypeEnvironment, Environment: &EnvironmentSource{VariableName: variableName}}
}

// Kubernetes returns a reference into the managed secret store.
func Kubernetes(secretName, key string, namespace *string) Reference {
	return Reference{
		Type:       ReferenceTypeKubernetes,
		Kubernetes: &KubernetesSource{SecretName: secretName, Key: key, Namespace: namespace},
	}
}

// Validate checks that exactly the variant named by Type is populated.
func (r Reference) Validate() error {
	set := 0
	if r.Literal != nil {
		set++
	}
	if r.Environment != nil {
		set++
	}
	if r.Kubernetes != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("%w: %d variants set", ErrInvalidReference, set)
	}

	switch r.Type {
	case ReferenceTypeLiteral:
		if r.Literal != nil {
			return nil
		}
	case ReferenceTypeEnvironment:
		if r.Environment != nil {
			return nil
		}
	case ReferenceTypeKubernetes:
		if r.Kubernetes != nil {
			return nil
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidReference, r.Type)
	}
	return fmt.Errorf("%w: type %q does not match populated variant", ErrInvalidReference, r.Type)
}

// String describes the reference without revealing literal values.
func (r Reference) String() string {
	switch {
	case r.Type == ReferenceTypeLiteral && r.Literal != nil:
		return "literal"
	case r.Type == ReferenceTypeEnvironment && r.Environment != nil:
		return fmt.Sprintf("environment(%s)", r.Environment.VariableName)
	case r.Type == ReferenceTypeKubernetes && r.Kubernetes != nil:
		name := r.Kubernetes.SecretName
		if r.Kubernetes.Namespace != nil {
			name = *r.Kubernetes.Namespace + "/" + name
		}
		return fmt.Sprintf("kubernetes(%s#%s)", name, r.Kubernetes.Key)
	default:
		return fmt.Sprintf("invalid(%s)", r.Type)
	}
}

// UnmarshalJSON decodes the {"type": ...} tagged wire shape.
func (r *Reference) UnmarshalJSON(data []byte) error {
	var head struct {
		Type ReferenceType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}

	switch head.Type {
	case ReferenceTypeLiteral:
		var src struct {
			Value     *string `json:"value"`
			Encrypted *bool   `json:"encrypted"`
		}
		if err := json.Unmarshal(data, &src); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidReference, err)
		}
		if src.Value == nil {
			return fmt.Errorf("%w: literal secret is missing field \"value\"", ErrInvalidReference)
		}
		*r = Reference{Type: head.Type, Literal: &LiteralSource{Value: *src.Value, Encrypted: src.Encrypted}}

	case ReferenceTypeEnvironment:
		var src struct {
			VariableName *string `json:"variable_name"`
		}
		if err := json.Unmarshal(data, &src); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidReference, err)
		}
		if src.VariableName == nil {
			return fmt.Errorf("%w: environment secret is missing field \"variable_name\"", ErrInvalidReference)
		}
		*r = Environment(*src.VariableName)

	case ReferenceTypeKubernetes:
		var src struct {
			SecretName *string `json:"secret_name"`
			Key        *string `json:"key"`
			Namespace  *string `json:"namespace"`
		}
		if err := json.Unmarshal(data, &src); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidReference, err)
		}
		if src.SecretName == nil || src.Key == nil {
			return fmt.Errorf("%w: kubernetes secret requires \"secret_name\" and \"key\"", ErrInvalidReference)
		}
		*r = Kubernetes(*src.SecretName, *src.Key, src.Namespace)

	case "":
		return fmt.Errorf("%w: missing field \"type\"", ErrInvalidReference)
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidReference, head.Type)
	}

	return nil
}

// MarshalJSON encodes the reference in its tagged wire shape.
func (r Reference) MarshalJSON() ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	switch r.Type {
	case ReferenceTypeLiteral:
		return json.Marshal(struct {
			Type ReferenceType `json:"type"`
			LiteralSource
		}{r.Type, *r.Literal})
	case ReferenceTypeEnvironment:
		return json.Marshal(struct {
			Type ReferenceType `json:"type"`
			EnvironmentSource
		}{r.Type, *r.Environment})
	default:
		return json.Marshal(struct {
			Type ReferenceType `json:"type"`
			KubernetesSource
		}{r.Type, *r.Kubernetes})
	}
}
