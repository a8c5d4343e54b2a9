package codec

import adapt "github.com/reoring/adapt"

// RegisterAll installs every built-in codec on the adapter. Registration is
// explicit so a host that wants a subset, or a replacement under the same
// name, constructs the codecs it needs and calls RegisterFormat itself.
func RegisterAll(a *adapt.Adapter) error {
	cb, err := CBOR()
	if err != nil {
		return err
	}
	for _, f := range []adapt.Format{JSON(), YAML(), cb, Avro(), CSV()} {
		if err := a.RegisterFormat(f, false); err != nil {
			return err
		}
	}
	return nil
}
