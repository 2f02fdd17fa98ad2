/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package sprout

import "log"

/**
Verbose logs if not nil
*/
var verbose *log.Logger

/**
Use this function to operate verbose logging of bean creation and destruction.
*/

func Verbose(log *log.Logger) (prev *log.Logger) {
	prev, verbose = verbose, log
	return
}
