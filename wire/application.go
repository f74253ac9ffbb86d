// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import (
	"io"

	"github.com/igankevich/factory/kernel"
)

// EncodeApplication writes a per spec.md §6's `application_record` grammar:
//
//	application_record := u64_be app_id || u16_be exec_path_len || utf8 path
func EncodeApplication(w io.Writer, a kernel.Application) error {
	if err := WriteUint64(w, a.ID); err != nil {
		return err
	}
	return WriteString(w, a.ExecPath)
}

// DecodeApplication reads an [kernel.Application] per the grammar
// documented on [EncodeApplication]. WaitForCompletion is not part of the
// wire record (it is local scheduling policy, never transmitted) and is
// left at its zero value.
func DecodeApplication(r io.Reader) (kernel.Application, error) {
	id, err := ReadUint64(r)
	if err != nil {
		return kernel.Application{}, err
	}
	path, err := ReadString(r)
	if err != nil {
		return kernel.Application{}, err
	}
	return kernel.Application{ID: id, ExecPath: path}, nil
}
