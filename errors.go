/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package sprout

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

/**
Creation phases used to annotate failures as they propagate up from nested calls.
*/

const (
	PhaseInstantiation  = "instantiation"
	PhasePopulation     = "population"
	PhaseInitialization = "initialization"
	PhaseDestruction    = "destruction"
)

/**
Wraps any failure of a single bean creation request with the bean name and phase.
The outermost caller receives one error naming the root bean that failed with the cause chained.
*/

type BeanCreationError struct {
	BeanName string
	Phase    string
	Err      error
}

func (t *BeanCreationError) Error() string {
	return fmt.Sprintf("error creating bean '%s' on phase '%s': %v", t.BeanName, t.Phase, t.Err)
}

func (t *BeanCreationError) Cause() error {
	return t.Err
}

func (t *BeanCreationError) Unwrap() error {
	return t.Err
}

func creationError(beanName, phase string, err error) error {
	if err == nil {
		return nil
	}
	if ce, ok := err.(*BeanCreationError); ok && ce.BeanName == beanName {
		return err
	}
	return &BeanCreationError{BeanName: beanName, Phase: phase, Err: err}
}

type NoSuchBeanError struct {
	BeanName string
}

func (t *NoSuchBeanError) Error() string {
	return fmt.Sprintf("no bean named '%s' is defined", t.BeanName)
}

/**
Unsatisfied dependency names the owning bean plus the property or constructor parameter
that could not be resolved.
*/

type UnsatisfiedDependencyError struct {
	BeanName string
	Site     string
	Err      error
}

func (t *UnsatisfiedDependencyError) Error() string {
	if t.Err != nil {
		return fmt.Sprintf("unsatisfied dependency of bean '%s' expressed through %s: %v", t.BeanName, t.Site, t.Err)
	}
	return fmt.Sprintf("unsatisfied dependency of bean '%s' expressed through %s", t.BeanName, t.Site)
}

func (t *UnsatisfiedDependencyError) Cause() error {
	return t.Err
}

func (t *UnsatisfiedDependencyError) Unwrap() error {
	return t.Err
}

/**
More than one equally assignable candidate found for a by-type request,
reported instead of a nondeterministic pick.
*/

type AmbiguousDependencyError struct {
	BeanName   string
	Site       string
	Candidates []string
}

func (t *AmbiguousDependencyError) Error() string {
	return fmt.Sprintf("ambiguous dependency of bean '%s' at %s: expected single matching bean but found %d: %s",
		t.BeanName, t.Site, len(t.Candidates), strings.Join(t.Candidates, ", "))
}

/**
Reference cycle that could not be broken with an early reference, for example a constructor cycle.
*/

type CircularDependencyError struct {
	BeanName string
	Stack    []string
}

func (t *CircularDependencyError) Error() string {
	if len(t.Stack) > 0 {
		return fmt.Sprintf("circular reference on bean '%s': %s", t.BeanName, strings.Join(t.Stack, " -> "))
	}
	return fmt.Sprintf("circular reference on bean '%s' that cannot be resolved with an early reference", t.BeanName)
}

type CurrentlyInCreationError struct {
	BeanName string
}

func (t *CurrentlyInCreationError) Error() string {
	return fmt.Sprintf("bean '%s' is currently in creation, is there an unresolvable circular reference", t.BeanName)
}

type TypeMismatchError struct {
	Value      interface{}
	TargetType string
	Err        error
}

func (t *TypeMismatchError) Error() string {
	if t.Err != nil {
		return fmt.Sprintf("failed to convert value of type '%T' to required type '%s': %v", t.Value, t.TargetType, t.Err)
	}
	return fmt.Sprintf("failed to convert value of type '%T' to required type '%s'", t.Value, t.TargetType)
}

func (t *TypeMismatchError) Cause() error {
	return t.Err
}

func (t *TypeMismatchError) Unwrap() error {
	return t.Err
}

func multipleErr(err []error) error {
	switch len(err) {
	case 0:
		return nil
	case 1:
		return err[0]
	default:
		return errors.Errorf("multiple errors, %v", err)
	}
}
