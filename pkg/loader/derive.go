package loader

// DeriveIsGeneric maps the upstream innovator flag to the is_generic
// tag: "0" marks a generic, anything else an originator product. This
// is the only place the derivation lives; nothing else may consult the
// flag.
func DeriveIsGeneric(innov string) bool {
	return innov == "0"
}
